package graphapi

import (
	"strings"
)

// Known class type literals the classifier keys on.  Everything else is
// matched heuristically (substring fallbacks) or left unclassified.
const (
	ClassTextEncode       = "CLIPTextEncode"
	ClassKSampler         = "KSampler"
	ClassKSamplerAdvanced = "KSamplerAdvanced"
	ClassLoraLoader       = "LoraLoader"
	ClassEmptyLatent      = "EmptyLatentImage"
	ClassEmptySD3Latent   = "EmptySD3LatentImage"
)

// sizeClasses are the node types reported as size sources.
var sizeClasses = map[string]bool{
	ClassEmptyLatent:    true,
	ClassEmptySD3Latent: true,
}

// Range fallbacks applied when the schema catalog omits a sampler input.
var (
	fallbackStepsRange   = Range{Min: 1, Max: 150, Default: 20}
	fallbackCfgRange     = Range{Min: 0, Max: 30, Default: 8.0, Step: 0.1}
	fallbackDenoiseRange = Range{Min: 0, Max: 1, Default: 1.0, Step: 0.01}
)

// CurrentValues captures the literal (non-link) values already wired into a
// sampler node at classification time.  Nil fields were links or absent.
type CurrentValues struct {
	Seed        *float64 `json:"seed,omitempty"`
	Steps       *float64 `json:"steps,omitempty"`
	Cfg         *float64 `json:"cfg,omitempty"`
	SamplerName *string  `json:"sampler_name,omitempty"`
	Scheduler   *string  `json:"scheduler,omitempty"`
	Denoise     *float64 `json:"denoise,omitempty"`
}

// SamplerInfo summarizes the one sampler node chosen for a workflow: the
// backend-declared choice lists and ranges for its tunable inputs, plus the
// values the graph already had wired in, which serve as pre-fill defaults.
type SamplerInfo struct {
	NodeID       string        `json:"node_id"`
	ClassName    string        `json:"class_name"`
	IsAdvanced   bool          `json:"is_advanced"`
	Samplers     []string      `json:"samplers,omitempty"`
	Schedulers   []string      `json:"schedulers,omitempty"`
	StepsRange   *Range        `json:"steps_range,omitempty"`
	CfgRange     *Range        `json:"cfg_range,omitempty"`
	DenoiseRange *Range        `json:"denoise_range,omitempty"`
	HasSeed      bool          `json:"has_seed"`
	Current      CurrentValues `json:"current_values"`
}

// LoraInfo describes one LoRA loader node and its strengths.
type LoraInfo struct {
	NodeID        string  `json:"node_id"`
	Name          string  `json:"name"`
	StrengthModel float64 `json:"strength_model"`
	StrengthClip  float64 `json:"strength_clip"`
}

// SizeInfo describes one latent size source node.
type SizeInfo struct {
	NodeID string `json:"node_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// CheckpointInfo names the checkpoint a workflow loads.
type CheckpointInfo struct {
	NodeID   string `json:"node_id"`
	CkptName string `json:"ckpt_name"`
}

// Analysis is the classifier's semantic summary of a workflow document.
type Analysis struct {
	// PromptNodes lists all text encoder candidates in document order.
	// The first is treated as the positive prompt; the negative prompt is
	// resolved by exclusion, not by position (see NegativePromptID).
	PromptNodes  []string
	SamplerNodes []string
	LoraNodes    []LoraInfo
	SizeNodes    []SizeInfo
	Checkpoint   *CheckpointInfo
	Sampler      *SamplerInfo
}

// PositivePromptID returns the id of the node treated as the positive
// prompt, or an empty string if the workflow has no prompt node.
func (a *Analysis) PositivePromptID() string {
	if len(a.PromptNodes) == 0 {
		return ""
	}
	return a.PromptNodes[0]
}

// HasNegativePrompt reports whether the workflow has a second text encoder
// that can carry a negative prompt.
func (a *Analysis) HasNegativePrompt() bool { return len(a.PromptNodes) > 1 }

// isPromptNode: the exact text encoder type with a settable "text" input.
func isPromptNode(n *Node) bool {
	return n.ClassType == ClassTextEncode && n.HasInput("text")
}

// isSamplerExact matches the two known sampler class types.
func isSamplerExact(classType string) bool {
	return classType == ClassKSampler || classType == ClassKSamplerAdvanced
}

// isSamplerLoose is the fallback rule: any class type containing "sampler",
// case-insensitively.
func isSamplerLoose(classType string) bool {
	return strings.Contains(strings.ToLower(classType), "sampler")
}

// Classify scans a workflow document and produces its semantic summary.
// The schema catalog is optional; without it the sampler summary falls back
// to fixed ranges and reports no choice lists.
func Classify(doc *GraphDocument, catalog *SchemaCatalog) *Analysis {
	a := &Analysis{}

	for _, ref := range doc.Find(func(_ string, n *Node) bool { return isPromptNode(n) }) {
		a.PromptNodes = append(a.PromptNodes, ref.ID)
	}

	samplerID, samplerNode := findSamplerNode(doc)
	for _, ref := range doc.Find(func(_ string, n *Node) bool {
		return isSamplerExact(n.ClassType) || isSamplerLoose(n.ClassType)
	}) {
		a.SamplerNodes = append(a.SamplerNodes, ref.ID)
	}
	if samplerNode != nil {
		a.Sampler = samplerSummary(samplerID, samplerNode, catalog)
	}

	for _, ref := range doc.Find(func(_ string, n *Node) bool { return n.ClassType == ClassLoraLoader }) {
		a.LoraNodes = append(a.LoraNodes, LoraInfo{
			NodeID:        ref.ID,
			Name:          scalarString(ref.Node, "lora_name"),
			StrengthModel: scalarNumber(ref.Node, "strength_model", 1.0),
			StrengthClip:  scalarNumber(ref.Node, "strength_clip", 1.0),
		})
	}

	for _, ref := range doc.Find(func(_ string, n *Node) bool { return sizeClasses[n.ClassType] }) {
		a.SizeNodes = append(a.SizeNodes, SizeInfo{
			NodeID: ref.ID,
			Width:  int(scalarNumber(ref.Node, "width", 512)),
			Height: int(scalarNumber(ref.Node, "height", 512)),
		})
	}

	// first matching checkpoint loader wins; later matches never overwrite
	if id, n := doc.FindFirst(func(_ string, n *Node) bool {
		return strings.Contains(strings.ToLower(n.ClassType), "checkpointloader") &&
			scalarString(n, "ckpt_name") != ""
	}); n != nil {
		a.Checkpoint = &CheckpointInfo{NodeID: id, CkptName: scalarString(n, "ckpt_name")}
	}

	return a
}

// NegativePromptID resolves the negative prompt node by exclusion: the first
// prompt candidate in document order whose id differs from the positive.
// Exclusion rather than position keeps the lookup correct when the document
// was edited between classification and injection.
func NegativePromptID(doc *GraphDocument, positiveID string) string {
	candidates := doc.Find(func(_ string, n *Node) bool { return isPromptNode(n) })
	if len(candidates) < 2 {
		return ""
	}
	for _, ref := range candidates {
		if ref.ID != positiveID {
			return ref.ID
		}
	}
	return ""
}

// findSamplerNode locates "the" sampler: the first exact class match in
// document order, else the first loose match.  Exact matches always win over
// substring matches regardless of position.
func findSamplerNode(doc *GraphDocument) (string, *Node) {
	var looseID string
	var looseNode *Node
	for _, id := range doc.order {
		n := doc.nodes[id]
		if isSamplerExact(n.ClassType) {
			return id, n
		}
		if looseNode == nil && isSamplerLoose(n.ClassType) {
			looseID, looseNode = id, n
		}
	}
	return looseID, looseNode
}

func samplerSummary(id string, n *Node, catalog *SchemaCatalog) *SamplerInfo {
	info := &SamplerInfo{
		NodeID:     id,
		ClassName:  n.ClassType,
		IsAdvanced: n.ClassType == ClassKSamplerAdvanced,
		HasSeed:    n.HasInput("seed"),
	}

	schema := catalog.Class(n.ClassType)
	if schema != nil {
		info.Samplers = schema.EnumChoices("sampler_name")
		info.Schedulers = schema.EnumChoices("scheduler")
	}
	info.StepsRange = rangeOrFallback(schema, "steps", KindInt, fallbackStepsRange)
	info.CfgRange = rangeOrFallback(schema, "cfg", KindFloat, fallbackCfgRange)
	if n.HasInput("denoise") {
		info.DenoiseRange = rangeOrFallback(schema, "denoise", KindFloat, fallbackDenoiseRange)
	}

	info.Current.Seed = scalarNumberPtr(n, "seed")
	info.Current.Steps = scalarNumberPtr(n, "steps")
	info.Current.Cfg = scalarNumberPtr(n, "cfg")
	info.Current.Denoise = scalarNumberPtr(n, "denoise")
	info.Current.SamplerName = scalarStringPtr(n, "sampler_name")
	info.Current.Scheduler = scalarStringPtr(n, "scheduler")
	return info
}

// rangeOrFallback merges a declared range with the fixed fallback,
// substituting fallback fields where the declaration left zeroes.
func rangeOrFallback(schema *NodeSchema, key string, kind InputKind, fb Range) *Range {
	declared := schema.NumericRange(key, kind)
	if declared == nil {
		r := fb
		return &r
	}
	r := *declared
	if r.Min == 0 && fb.Min != 0 {
		r.Min = fb.Min
	}
	if r.Max == 0 {
		r.Max = fb.Max
	}
	if r.Default == 0 && fb.Default != 0 {
		r.Default = fb.Default
	}
	if r.Step == 0 {
		r.Step = fb.Step
	}
	return &r
}

func scalarString(n *Node, key string) string {
	if s, ok := n.ScalarInput(key).(string); ok {
		return s
	}
	return ""
}

func scalarStringPtr(n *Node, key string) *string {
	if s, ok := n.ScalarInput(key).(string); ok {
		return &s
	}
	return nil
}

func scalarNumber(n *Node, key string, def float64) float64 {
	if f, ok := n.ScalarInput(key).(float64); ok {
		return f
	}
	return def
}

func scalarNumberPtr(n *Node, key string) *float64 {
	if f, ok := n.ScalarInput(key).(float64); ok {
		return &f
	}
	return nil
}
