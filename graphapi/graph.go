package graphapi

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// FormatError reports malformed workflow JSON or a document whose top level
// is not a node-id keyed object.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid workflow document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid workflow document: %s", e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Node is one unit of an API-format workflow graph: a class type tag plus a
// set of named inputs.  An input value is either a literal scalar or a link
// reference to another node's output.
type Node struct {
	ClassType string
	Inputs    map[string]interface{}
}

// HasInput reports whether the node declares the given input key at all,
// regardless of whether it holds a scalar or a link.
func (n *Node) HasInput(key string) bool {
	_, ok := n.Inputs[key]
	return ok
}

// ScalarInput returns the literal value wired into the given input, or nil
// if the key is absent or holds a link.
func (n *Node) ScalarInput(key string) interface{} {
	v, ok := n.Inputs[key]
	if !ok || !IsScalar(v) {
		return nil
	}
	return v
}

// GraphDocument is an API-format workflow: a mapping from opaque node id to
// Node.  Document key order is preserved so that "first match" queries are
// deterministic across repeated calls.
type GraphDocument struct {
	nodes map[string]*Node
	order []string
}

// NodeRef pairs a node with its id for iteration results.
type NodeRef struct {
	ID   string
	Node *Node
}

// ParseGraph deserializes an API-format workflow document.  The top level
// must be a JSON object keyed by node id; key order is recorded as the
// document's iteration order.
func ParseGraph(data []byte) (*GraphDocument, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))

	t, err := dec.Token()
	if err != nil {
		return nil, &FormatError{Reason: "not valid JSON", Err: err}
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return nil, &FormatError{Reason: "top level is not an object"}
	}

	doc := &GraphDocument{nodes: make(map[string]*Node)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &FormatError{Reason: "truncated document", Err: err}
		}
		id := keyTok.(string)

		raw := json.RawMessage{}
		if err := dec.Decode(&raw); err != nil {
			return nil, &FormatError{Reason: "truncated document", Err: err}
		}

		var body struct {
			ClassType string                 `json:"class_type"`
			Inputs    map[string]interface{} `json:"inputs"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("node %q is not an object", id), Err: err}
		}
		if body.Inputs == nil {
			body.Inputs = make(map[string]interface{})
		}
		// a duplicated id keeps its first position but takes the later
		// value, the way a plain JSON object parse would resolve it
		if _, dup := doc.nodes[id]; !dup {
			doc.order = append(doc.order, id)
		}
		doc.nodes[id] = &Node{ClassType: body.ClassType, Inputs: body.Inputs}
	}
	if _, err := dec.Token(); err != nil {
		return nil, &FormatError{Reason: "truncated document", Err: err}
	}
	return doc, nil
}

// ParseGraphReader reads the full stream and parses it as a workflow document.
func ParseGraphReader(r io.Reader) (*GraphDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseGraph(data)
}

// ParseGraphFile loads a workflow document from a JSON file.
func ParseGraphFile(path string) (*GraphDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseGraphReader(f)
}

// Len returns the number of nodes in the document.
func (d *GraphDocument) Len() int { return len(d.nodes) }

// Node returns the node with the given id, or nil.
func (d *GraphDocument) Node(id string) *Node { return d.nodes[id] }

// IDs returns the node ids in document order.
func (d *GraphDocument) IDs() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// Find returns all nodes matching the predicate, in document order.
func (d *GraphDocument) Find(pred func(id string, n *Node) bool) []NodeRef {
	refs := make([]NodeRef, 0)
	for _, id := range d.order {
		n := d.nodes[id]
		if pred(id, n) {
			refs = append(refs, NodeRef{ID: id, Node: n})
		}
	}
	return refs
}

// FindFirst returns the first node in document order matching the predicate,
// or an empty id if none matches.
func (d *GraphDocument) FindFirst(pred func(id string, n *Node) bool) (string, *Node) {
	for _, id := range d.order {
		n := d.nodes[id]
		if pred(id, n) {
			return id, n
		}
	}
	return "", nil
}

// Clone returns a structural deep copy of the document.  The clone shares no
// mutable state with the source; mutating one never changes the other.
func (d *GraphDocument) Clone() *GraphDocument {
	c := &GraphDocument{
		nodes: make(map[string]*Node, len(d.nodes)),
		order: make([]string, len(d.order)),
	}
	copy(c.order, d.order)
	for id, n := range d.nodes {
		c.nodes[id] = &Node{
			ClassType: n.ClassType,
			Inputs:    cloneValue(n.Inputs).(map[string]interface{}),
		}
	}
	return c
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		// scalars and json.Number are immutable
		return v
	}
}

// MarshalJSON serializes the document back to the API wire shape, preserving
// the original key order.
func (d *GraphDocument) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, id := range d.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		n := d.nodes[id]
		body, err := json.Marshal(struct {
			ClassType string                 `json:"class_type"`
			Inputs    map[string]interface{} `json:"inputs"`
		}{n.ClassType, n.Inputs})
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

// UnmarshalJSON lets a GraphDocument be decoded as part of a larger value,
// e.g. a cached entry or a submit envelope echoed back by the backend.
func (d *GraphDocument) UnmarshalJSON(b []byte) error {
	parsed, err := ParseGraph(b)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
