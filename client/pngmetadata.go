package client

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/arlewin/comfybatch/graphapi"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// maxChunks bounds the scan so a malformed file with a corrupt length field
// cannot spin the reader forever.  Every chunk counts against it, text or
// not.
const maxChunks = 200

// placeholder stored for compressed chunk payloads; the generation metadata
// this reader targets is always written uncompressed.
const compressedPlaceholder = "compressed"

// TextChunk is one textual metadata chunk extracted from a PNG.
type TextChunk struct {
	Type       string
	Keyword    string
	Text       string
	Compressed bool
}

// ComfyMetadata holds the workflow graphs embedded in a generated image:
// the full editor workflow and/or the executed API prompt.
type ComfyMetadata struct {
	Workflow *graphapi.GraphDocument
	Prompt   *graphapi.GraphDocument
}

// ReadPNGTextChunks scans a PNG stream and returns its tEXt, zTXt and iTXt
// chunks in file order.  Chunk CRCs are consumed but not verified; compressed
// payloads are not inflated.  The scan stops at IEND or after maxChunks
// chunks, whichever comes first.
func ReadPNGTextChunks(r io.Reader) ([]TextChunk, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, &graphapi.FormatError{Reason: "reading PNG signature", Err: err}
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, &graphapi.FormatError{Reason: "not a PNG file"}
	}

	var chunks []TextChunk
	header := make([]byte, 8)
	for i := 0; i < maxChunks; i++ {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, &graphapi.FormatError{Reason: "reading chunk header", Err: err}
		}
		length := binary.BigEndian.Uint32(header[:4])
		ctype := string(header[4:8])

		if ctype == "IEND" {
			return chunks, nil
		}

		// only text-bearing chunks are materialized; everything else is
		// skipped, data plus CRC
		switch ctype {
		case "tEXt", "zTXt", "iTXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, &graphapi.FormatError{Reason: "reading " + ctype + " chunk data", Err: err}
			}
			// CRC, read unverified
			if _, err := io.ReadFull(r, header[:4]); err != nil {
				return nil, &graphapi.FormatError{Reason: "reading " + ctype + " chunk CRC", Err: err}
			}
			switch ctype {
			case "tEXt":
				chunks = append(chunks, parseTextChunk(data))
			case "zTXt":
				chunks = append(chunks, parseCompressedTextChunk(data))
			case "iTXt":
				if c, ok := parseInternationalTextChunk(data); ok {
					chunks = append(chunks, c)
				}
			}
		default:
			if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
				return nil, &graphapi.FormatError{Reason: "skipping " + ctype + " chunk", Err: err}
			}
		}
	}
	return chunks, nil
}

// parseTextChunk splits a tEXt payload at its first NUL into keyword and
// text.  The payload is Latin-1; each byte maps to the same code point.
func parseTextChunk(data []byte) TextChunk {
	keyword, text := splitAtNul(data)
	return TextChunk{
		Type:    "tEXt",
		Keyword: latin1(keyword),
		Text:    latin1(text),
	}
}

// parseCompressedTextChunk keeps the keyword of a zTXt payload.  The deflated
// text is not inflated; a placeholder marks it.
func parseCompressedTextChunk(data []byte) TextChunk {
	keyword, _ := splitAtNul(data)
	return TextChunk{
		Type:       "zTXt",
		Keyword:    latin1(keyword),
		Text:       compressedPlaceholder,
		Compressed: true,
	}
}

// parseInternationalTextChunk parses an iTXt payload:
//
//	keyword NUL compressionFlag compressionMethod languageTag NUL
//	translatedKeyword NUL text
func parseInternationalTextChunk(data []byte) (TextChunk, bool) {
	keyword, rest := splitAtNul(data)
	if len(rest) < 2 {
		return TextChunk{}, false
	}
	compressed := rest[0] != 0
	rest = rest[2:] // flag and method bytes

	_, rest = splitAtNul(rest) // language tag
	_, rest = splitAtNul(rest) // translated keyword

	c := TextChunk{
		Type:       "iTXt",
		Keyword:    latin1(keyword),
		Compressed: compressed,
	}
	if compressed {
		c.Text = compressedPlaceholder
	} else {
		c.Text = string(rest) // iTXt text is UTF-8
	}
	return c, true
}

func splitAtNul(data []byte) ([]byte, []byte) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, nil
}

func latin1(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// ExtractComfyData picks the embedded workflow and prompt graphs out of a
// chunk list.  A chunk qualifies when its keyword is "workflow" or "prompt"
// (case-insensitive) and its text looks like a JSON object.  Returns nil when
// the image carries neither.
func ExtractComfyData(chunks []TextChunk) *ComfyMetadata {
	var meta ComfyMetadata
	for _, c := range chunks {
		if !strings.HasPrefix(strings.TrimSpace(c.Text), "{") {
			continue
		}
		switch strings.ToLower(c.Keyword) {
		case "workflow":
			if meta.Workflow == nil {
				if doc, err := graphapi.ParseGraph([]byte(c.Text)); err == nil {
					meta.Workflow = doc
				}
			}
		case "prompt":
			if meta.Prompt == nil {
				if doc, err := graphapi.ParseGraph([]byte(c.Text)); err == nil {
					meta.Prompt = doc
				}
			}
		}
		if meta.Workflow != nil && meta.Prompt != nil {
			break
		}
	}
	if meta.Workflow == nil && meta.Prompt == nil {
		return nil
	}
	return &meta
}

// ReadComfyMetadata reads a PNG stream and extracts its embedded generation
// graphs in one step.
func ReadComfyMetadata(r io.Reader) (*ComfyMetadata, error) {
	chunks, err := ReadPNGTextChunks(r)
	if err != nil {
		return nil, err
	}
	return ExtractComfyData(chunks), nil
}

// ReadComfyMetadataFile is the path-based convenience wrapper.
func ReadComfyMetadataFile(path string) (*ComfyMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadComfyMetadata(f)
}
