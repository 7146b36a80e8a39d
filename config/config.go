// Package config holds the persisted user settings and the pre-submit
// validation rules for user-supplied values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Defaults for a fresh installation.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8188
)

// Settings is the persisted settings record.  It is read and written
// wholesale; there are no partial updates.
type Settings struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Workflow     string `mapstructure:"workflow"`
	OutputFolder string `mapstructure:"output_folder"`
}

// DefaultSettings returns the settings a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{Host: DefaultHost, Port: DefaultPort}
}

// ValidationError reports a user-supplied value that failed a pre-submit
// check.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// hostPattern accepts "localhost" or a dotted-quad address.  Hostname
// resolution is deliberately out of scope; the backend is expected on the
// local machine or a directly addressed peer.
var hostPattern = regexp.MustCompile(`(?i)^(localhost|(\d{1,3}\.){3}\d{1,3})$`)

// ValidateHost checks a host value before it is used to build request URLs.
func ValidateHost(host string) error {
	if !hostPattern.MatchString(strings.TrimSpace(host)) {
		return &ValidationError{Field: "host", Value: host, Reason: "must be localhost or an IPv4 address"}
	}
	return nil
}

// ValidatePort checks a port value is in the valid TCP range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: "port", Value: fmt.Sprint(port), Reason: "must be between 1 and 65535"}
	}
	return nil
}

// Validate runs every pre-submit check over a settings record.
func (s Settings) Validate() error {
	if err := ValidateHost(s.Host); err != nil {
		return err
	}
	return ValidatePort(s.Port)
}

// SanitizePrompt strips control characters from user prompt text and trims
// surrounding whitespace.  Newlines and tabs collapse to single spaces so
// multi-line editor input submits as one line.
func SanitizePrompt(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 0x20 || r == 0x7F:
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Load reads the settings file at path, layering it over the defaults.  A
// missing file yields the defaults without error.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes the settings record to path, wholesale.
func Save(path string, s Settings) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.Set("host", s.Host)
	v.Set("port", s.Port)
	v.Set("workflow", s.Workflow)
	v.Set("output_folder", s.OutputFolder)
	return v.WriteConfigAs(path)
}
