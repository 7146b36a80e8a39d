package graphapi

// ValueKind classifies a node input value.
//
// A workflow input holds either a literal scalar (string, number, bool), a
// link reference to another node's output, or something this package does
// not recognize.  Injection code only ever writes over scalars.
type ValueKind int

const (
	ValueScalar ValueKind = iota
	ValueLink
	ValueUnknown
)

// Link is a reference to another node's output slot.
type Link struct {
	NodeID string
	Slot   int
}

// KindOf classifies an input value without resolving it.
func KindOf(v interface{}) ValueKind {
	switch v.(type) {
	case string, bool, float64, int, int64:
		return ValueScalar
	case []interface{}:
		if _, ok := AsLink(v); ok {
			return ValueLink
		}
		return ValueUnknown
	default:
		return ValueUnknown
	}
}

// IsScalar reports whether v is a settable literal value.
func IsScalar(v interface{}) bool { return KindOf(v) == ValueScalar }

// AsLink interprets v as a link reference.  The wire format is a two element
// array: the source node id followed by the output slot index.
func AsLink(v interface{}) (Link, bool) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) != 2 {
		return Link{}, false
	}
	id, ok := arr[0].(string)
	if !ok {
		return Link{}, false
	}
	slot, ok := arr[1].(float64)
	if !ok {
		return Link{}, false
	}
	return Link{NodeID: id, Slot: int(slot)}, true
}
