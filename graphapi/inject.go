package graphapi

import (
	"fmt"
	"strings"
)

// NoPromptNodeError reports that a workflow has no text encoder node with a
// settable text input.
type NoPromptNodeError struct{}

func (e *NoPromptNodeError) Error() string {
	return fmt.Sprintf("no %s node with a 'text' input", ClassTextEncode)
}

// dimensionClasses is the allow-list of node types whose width/height inputs
// carry latent dimensions.  Restricting dimension injection to these types
// keeps unrelated width/height-bearing nodes (crop, scale) untouched.
var dimensionClasses = map[string]bool{
	ClassEmptyLatent:    true,
	ClassEmptySD3Latent: true,
	"LatentUpscale":     true,
	"LatentUpscaleBy":   true,
}

// SamplerParams carries the sampler overrides for one generation.  Nil
// pointer fields and empty strings are left untouched on the node.  The
// advanced fields apply only to KSamplerAdvanced nodes and only when
// explicitly provided.
type SamplerParams struct {
	Seed        *int64
	Steps       *int
	Cfg         *float64
	SamplerName string
	Scheduler   string
	Denoise     *float64

	AddNoise                *string
	StartAtStep             *int
	EndAtStep               *int
	ReturnWithLeftoverNoise *string
}

// NormalizeSeed maps an arbitrary signed seed into the unsigned 32-bit range
// the backend accepts: negative values floor to zero, everything else wraps
// modulo 2^32.
func NormalizeSeed(v int64) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v & 0xFFFFFFFF)
}

// InjectPrompt writes the prompt text into the preferred node when it is a
// valid text encoder, otherwise into the first qualifying node in document
// order.  The mutated node's id is returned.
func InjectPrompt(doc *GraphDocument, text string, preferredID string) (string, error) {
	if preferredID != "" {
		if n := doc.Node(preferredID); n != nil && isPromptNode(n) {
			n.Inputs["text"] = text
			return preferredID, nil
		}
	}
	id, n := doc.FindFirst(func(_ string, n *Node) bool { return isPromptNode(n) })
	if n == nil {
		return "", &NoPromptNodeError{}
	}
	n.Inputs["text"] = text
	return id, nil
}

// InjectNegativePrompt writes the negative prompt text into the given node.
// Negative prompts are optional: a missing id or a node no longer present in
// the document reports false rather than an error.
func InjectNegativePrompt(doc *GraphDocument, text string, negID string) bool {
	if negID == "" {
		return false
	}
	n := doc.Node(negID)
	if n == nil {
		return false
	}
	n.Inputs["text"] = text
	return true
}

// SetSamplerParams locates the first sampler node (same rule as
// classification) and overwrites the provided parameters, but only for input
// keys the node already declares.  Returns the mutated node's id, or false
// when the document has no sampler node; callers proceed without sampler
// overrides in that case.
func SetSamplerParams(doc *GraphDocument, p SamplerParams) (string, bool) {
	id, n := findSamplerNode(doc)
	if n == nil {
		return "", false
	}

	if p.Seed != nil && n.HasInput("seed") {
		n.Inputs["seed"] = float64(NormalizeSeed(*p.Seed))
	}
	if p.Steps != nil && n.HasInput("steps") {
		n.Inputs["steps"] = float64(*p.Steps)
	}
	if p.Cfg != nil && n.HasInput("cfg") {
		n.Inputs["cfg"] = *p.Cfg
	}
	if p.SamplerName != "" && n.HasInput("sampler_name") {
		n.Inputs["sampler_name"] = p.SamplerName
	}
	if p.Scheduler != "" && n.HasInput("scheduler") {
		n.Inputs["scheduler"] = p.Scheduler
	}
	if p.Denoise != nil && n.HasInput("denoise") {
		n.Inputs["denoise"] = *p.Denoise
	}

	if n.ClassType == ClassKSamplerAdvanced {
		if p.AddNoise != nil && n.HasInput("add_noise") {
			n.Inputs["add_noise"] = *p.AddNoise
		}
		if p.StartAtStep != nil && n.HasInput("start_at_step") {
			n.Inputs["start_at_step"] = float64(*p.StartAtStep)
		}
		if p.EndAtStep != nil && n.HasInput("end_at_step") {
			n.Inputs["end_at_step"] = float64(*p.EndAtStep)
		}
		if p.ReturnWithLeftoverNoise != nil && n.HasInput("return_with_leftover_noise") {
			n.Inputs["return_with_leftover_noise"] = *p.ReturnWithLeftoverNoise
		}
	}
	return id, true
}

// ApplyDimensions overwrites width and height on every allow-listed node
// that declares both keys, and returns the touched node ids in document
// order.  Nodes outside the allow-list are never modified even when they
// carry width/height inputs.
func ApplyDimensions(doc *GraphDocument, width, height int) []string {
	touched := make([]string, 0)
	for _, ref := range doc.Find(func(_ string, n *Node) bool {
		return dimensionClasses[n.ClassType] && n.HasInput("width") && n.HasInput("height")
	}) {
		ref.Node.Inputs["width"] = float64(width)
		ref.Node.Inputs["height"] = float64(height)
		touched = append(touched, ref.ID)
	}
	return touched
}

// SetLoraStrength overwrites a LoRA loader node's model and clip strengths.
// A node that was removed between classification and injection is skipped
// silently; callers iterate their known LoRA ids without failure handling.
func SetLoraStrength(doc *GraphDocument, nodeID string, model, clip float64) bool {
	n := doc.Node(nodeID)
	if n == nil || n.ClassType != ClassLoraLoader {
		return false
	}
	n.Inputs["strength_model"] = model
	n.Inputs["strength_clip"] = clip
	return true
}

// GenerationSettings is the human-readable record of what a (mutated) graph
// will actually render: the values reported back to the caller after a
// generation, and what the PNG inspector shows for existing images.
type GenerationSettings struct {
	Seed      *uint32
	Prompt    string
	Negative  string
	Size      string
	Sampler   string
	Steps     *int
	Cfg       *float64
	Scheduler string
	Denoise   *float64
	Model     string
}

// ExtractSettings reads the effective generation parameters back out of a
// graph document: the checkpoint from the first checkpoint loader, the
// sampler values from any sampler-ish node, and the prompts from the text
// encoders (first candidate positive, next by exclusion negative).
func ExtractSettings(doc *GraphDocument) GenerationSettings {
	var s GenerationSettings

	if _, n := doc.FindFirst(func(_ string, n *Node) bool {
		return strings.Contains(strings.ToLower(n.ClassType), "checkpointloader") &&
			scalarString(n, "ckpt_name") != ""
	}); n != nil {
		s.Model = scalarString(n, "ckpt_name")
	}

	for _, ref := range doc.Find(func(_ string, n *Node) bool { return isSamplerLoose(n.ClassType) }) {
		n := ref.Node
		if v := scalarString(n, "sampler_name"); v != "" {
			s.Sampler = v
		}
		if v := scalarNumberPtr(n, "steps"); v != nil {
			steps := int(*v)
			s.Steps = &steps
		}
		if v := scalarNumberPtr(n, "cfg"); v != nil {
			s.Cfg = v
		}
		if v := scalarString(n, "scheduler"); v != "" {
			s.Scheduler = v
		}
		if v := scalarNumberPtr(n, "denoise"); v != nil {
			s.Denoise = v
		}
		if v := scalarNumberPtr(n, "seed"); v != nil {
			seed := uint32(int64(*v) & 0xFFFFFFFF)
			s.Seed = &seed
		}
	}

	for _, ref := range doc.Find(func(_ string, n *Node) bool { return sizeClasses[n.ClassType] }) {
		w := scalarNumber(ref.Node, "width", 0)
		h := scalarNumber(ref.Node, "height", 0)
		if w > 0 && h > 0 {
			s.Size = fmt.Sprintf("%dx%d", int(w), int(h))
			break
		}
	}

	prompts := doc.Find(func(_ string, n *Node) bool { return isPromptNode(n) })
	if len(prompts) > 0 {
		s.Prompt = scalarString(prompts[0].Node, "text")
	}
	if len(prompts) > 1 {
		s.Negative = scalarString(prompts[1].Node, "text")
	}
	return s
}
