package graphapi

import (
	"encoding/json"
)

// InputKind is the declared kind of a node input in the backend's schema
// catalog.
type InputKind string

const (
	KindInt    InputKind = "INT"
	KindFloat  InputKind = "FLOAT"
	KindEnum   InputKind = "ENUM"
	KindOpaque InputKind = "OPAQUE"
)

// Range is a numeric input's declared bounds.
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step,omitempty"`
}

// InputSpec describes one declared input of a node class.
type InputSpec struct {
	Kind    InputKind `json:"kind"`
	Choices []string  `json:"choices,omitempty"` // ordered, for enum kinds
	Range   *Range    `json:"range,omitempty"`   // for INT/FLOAT kinds
}

// NodeSchema is the set of declared inputs for one node class.
type NodeSchema struct {
	Inputs map[string]*InputSpec `json:"inputs"`
}

// Input returns the spec for an input key, or nil.
func (s *NodeSchema) Input(key string) *InputSpec {
	if s == nil {
		return nil
	}
	return s.Inputs[key]
}

// EnumChoices returns the ordered choices for an input, or nil if the input
// is absent or not declared as an enum.
func (s *NodeSchema) EnumChoices(key string) []string {
	spec := s.Input(key)
	if spec == nil || spec.Kind != KindEnum {
		return nil
	}
	return spec.Choices
}

// NumericRange returns the declared range for an input if it is declared
// with the given numeric kind.
func (s *NodeSchema) NumericRange(key string, kind InputKind) *Range {
	spec := s.Input(key)
	if spec == nil || spec.Kind != kind {
		return nil
	}
	return spec.Range
}

// SchemaCatalog maps node class types to their declared input schemas.
// It is fetched once per session (or restored from cache) and read-only
// thereafter.
type SchemaCatalog struct {
	Classes map[string]*NodeSchema `json:"classes"`
}

// Class returns the schema for a class type, or nil if the catalog does not
// know it.
func (c *SchemaCatalog) Class(classType string) *NodeSchema {
	if c == nil {
		return nil
	}
	return c.Classes[classType]
}

// ParseSchemaCatalog decodes the backend's object-info response.  Each class
// entry declares required and optional inputs as [kind, config?] pairs where
// kind is either a type tag string or, for categorical inputs, the ordered
// list of valid choices.  Shapes this parser does not recognize are kept as
// opaque inputs rather than rejected.
func ParseSchemaCatalog(data []byte) (*SchemaCatalog, error) {
	var raw map[string]struct {
		Input struct {
			Required map[string]json.RawMessage `json:"required"`
			Optional map[string]json.RawMessage `json:"optional"`
		} `json:"input"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Reason: "object info is not an object keyed by class type", Err: err}
	}

	catalog := &SchemaCatalog{Classes: make(map[string]*NodeSchema, len(raw))}
	for classType, entry := range raw {
		schema := &NodeSchema{Inputs: make(map[string]*InputSpec)}
		for key, spec := range entry.Input.Required {
			schema.Inputs[key] = parseInputSpec(spec)
		}
		for key, spec := range entry.Input.Optional {
			if _, exists := schema.Inputs[key]; !exists {
				schema.Inputs[key] = parseInputSpec(spec)
			}
		}
		catalog.Classes[classType] = schema
	}
	return catalog, nil
}

func parseInputSpec(raw json.RawMessage) *InputSpec {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return &InputSpec{Kind: KindOpaque}
	}

	// first element: a kind tag string, or the choice list itself
	var choices []string
	if err := json.Unmarshal(parts[0], &choices); err == nil {
		return &InputSpec{Kind: KindEnum, Choices: choices}
	}

	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return &InputSpec{Kind: KindOpaque}
	}

	switch tag {
	case "INT", "FLOAT":
		spec := &InputSpec{Kind: InputKind(tag)}
		if len(parts) > 1 {
			r := &Range{}
			if err := json.Unmarshal(parts[1], r); err == nil {
				spec.Range = r
			}
		}
		return spec
	default:
		// STRING, BOOLEAN, connection types and everything else: nothing
		// the classifier needs beyond presence
		return &InputSpec{Kind: KindOpaque}
	}
}
