package graphapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int             { return &v }
func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }
func strp(v string) *string       { return &v }

func TestInjectPromptFirstInDocumentOrder(t *testing.T) {
	doc := mustParse(t, t2iDoc)
	id, err := InjectPrompt(doc, "a red fox", "")
	require.NoError(t, err)
	assert.Equal(t, "6", id)
	assert.Equal(t, "a red fox", doc.Node("6").ScalarInput("text"))
	assert.Equal(t, "blurry", doc.Node("7").ScalarInput("text"), "other encoder untouched")
}

func TestInjectPromptHonorsPreferredNode(t *testing.T) {
	doc := mustParse(t, t2iDoc)
	id, err := InjectPrompt(doc, "a red fox", "7")
	require.NoError(t, err)
	assert.Equal(t, "7", id)
	assert.Equal(t, "a red fox", doc.Node("7").ScalarInput("text"))
}

func TestInjectPromptFallsBackFromBadPreferred(t *testing.T) {
	doc := mustParse(t, t2iDoc)
	// "3" exists but is a sampler, not a text encoder
	id, err := InjectPrompt(doc, "a red fox", "3")
	require.NoError(t, err)
	assert.Equal(t, "6", id)
}

func TestInjectPromptNoEncoder(t *testing.T) {
	doc := mustParse(t, `{"3": {"class_type": "KSampler", "inputs": {"seed": 1}}}`)
	_, err := InjectPrompt(doc, "x", "")
	var npe *NoPromptNodeError
	require.ErrorAs(t, err, &npe)
}

func TestInjectPromptIdempotent(t *testing.T) {
	once := mustParse(t, t2iDoc)
	twice := once.Clone()

	_, err := InjectPrompt(once, "same text", "")
	require.NoError(t, err)
	_, err = InjectPrompt(twice, "same text", "")
	require.NoError(t, err)
	_, err = InjectPrompt(twice, "same text", "")
	require.NoError(t, err)

	assert.Equal(t, once.Node("6").Inputs, twice.Node("6").Inputs)
}

func TestInjectNegativePromptIsOptional(t *testing.T) {
	doc := mustParse(t, t2iDoc)
	assert.False(t, InjectNegativePrompt(doc, "x", ""))
	assert.False(t, InjectNegativePrompt(doc, "x", "missing"))
	assert.True(t, InjectNegativePrompt(doc, "low quality", "7"))
	assert.Equal(t, "low quality", doc.Node("7").ScalarInput("text"))
}

func TestNormalizeSeed(t *testing.T) {
	assert.Equal(t, uint32(0), NormalizeSeed(-1))
	assert.Equal(t, uint32(0), NormalizeSeed(-999999))
	assert.Equal(t, uint32(0), NormalizeSeed(0))
	assert.Equal(t, uint32(42), NormalizeSeed(42))
	assert.Equal(t, uint32(0), NormalizeSeed(1<<32))
	assert.Equal(t, uint32(1), NormalizeSeed(1<<32+1))
	assert.Equal(t, uint32(0xFFFFFFFF), NormalizeSeed(1<<32-1))
}

func TestSetSamplerParamsOnlyTouchesDeclaredInputs(t *testing.T) {
	// sampler without a denoise input
	doc := mustParse(t, `{
		"3": {"class_type": "KSampler", "inputs": {"seed": 1, "steps": 10, "cfg": 7.0, "sampler_name": "euler", "scheduler": "normal"}}
	}`)
	id, ok := SetSamplerParams(doc, SamplerParams{
		Seed:    int64p(7),
		Steps:   intp(30),
		Denoise: float64p(0.5),
	})
	require.True(t, ok)
	assert.Equal(t, "3", id)

	n := doc.Node("3")
	assert.Equal(t, float64(7), n.ScalarInput("seed"))
	assert.Equal(t, float64(30), n.ScalarInput("steps"))
	assert.False(t, n.HasInput("denoise"), "absent input never created")
	assert.Equal(t, "euler", n.ScalarInput("sampler_name"), "empty override leaves value")
}

func TestSetSamplerParamsAdvancedFieldsGated(t *testing.T) {
	doc := mustParse(t, `{
		"3": {"class_type": "KSamplerAdvanced", "inputs": {"steps": 20, "add_noise": "enable", "start_at_step": 0, "end_at_step": 10000, "return_with_leftover_noise": "disable"}}
	}`)
	_, ok := SetSamplerParams(doc, SamplerParams{
		Steps:       intp(25),
		AddNoise:    strp("disable"),
		StartAtStep: intp(5),
	})
	require.True(t, ok)

	n := doc.Node("3")
	assert.Equal(t, "disable", n.ScalarInput("add_noise"))
	assert.Equal(t, float64(5), n.ScalarInput("start_at_step"))
	assert.Equal(t, float64(10000), n.ScalarInput("end_at_step"), "unprovided advanced field untouched")
}

func TestSetSamplerParamsAdvancedFieldsIgnoredOnBasicSampler(t *testing.T) {
	doc := mustParse(t, `{
		"3": {"class_type": "KSampler", "inputs": {"steps": 20, "start_at_step": 0}}
	}`)
	_, ok := SetSamplerParams(doc, SamplerParams{StartAtStep: intp(5)})
	require.True(t, ok)
	assert.Equal(t, float64(0), doc.Node("3").ScalarInput("start_at_step"))
}

func TestSetSamplerParamsNoSamplerNode(t *testing.T) {
	doc := mustParse(t, `{"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "x"}}}`)
	id, ok := SetSamplerParams(doc, SamplerParams{Steps: intp(10)})
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestApplyDimensionsOnlyTouchesLatentNodes(t *testing.T) {
	doc := mustParse(t, `{
		"5": {"class_type": "EmptyLatentImage", "inputs": {"width": 512, "height": 512}},
		"8": {"class_type": "LatentUpscale", "inputs": {"width": 1024, "height": 1024}},
		"12": {"class_type": "ImageCrop", "inputs": {"width": 100, "height": 100, "x": 0, "y": 0}}
	}`)
	touched := ApplyDimensions(doc, 768, 768)
	assert.Equal(t, []string{"5", "8"}, touched)

	assert.Equal(t, float64(768), doc.Node("5").ScalarInput("width"))
	assert.Equal(t, float64(768), doc.Node("8").ScalarInput("height"))
	assert.Equal(t, float64(100), doc.Node("12").ScalarInput("width"), "crop node untouched")
	assert.Equal(t, float64(100), doc.Node("12").ScalarInput("height"))
}

func TestSetLoraStrength(t *testing.T) {
	doc := mustParse(t, t2iDoc)
	assert.True(t, SetLoraStrength(doc, "10", 0.5, 0.4))
	assert.Equal(t, 0.5, doc.Node("10").ScalarInput("strength_model"))
	assert.Equal(t, 0.4, doc.Node("10").ScalarInput("strength_clip"))

	assert.False(t, SetLoraStrength(doc, "missing", 1, 1))
	assert.False(t, SetLoraStrength(doc, "3", 1, 1), "wrong class type refused")
}

// The full single-image pipeline over a clone: prompt, negative, sampler and
// dimensions land on the right nodes and nothing else moves.
func TestInjectionPipeline(t *testing.T) {
	base := mustParse(t, t2iDoc)
	doc := base.Clone()

	posID, err := InjectPrompt(doc, "a red fox in snow", "")
	require.NoError(t, err)
	negID := NegativePromptID(doc, posID)
	require.True(t, InjectNegativePrompt(doc, "low quality", negID))

	_, ok := SetSamplerParams(doc, SamplerParams{
		Seed:        int64p(-1),
		Steps:       intp(25),
		Cfg:         float64p(6.5),
		SamplerName: "dpmpp_2m",
		Scheduler:   "karras",
	})
	require.True(t, ok)
	ApplyDimensions(doc, 768, 512)

	assert.Equal(t, "a red fox in snow", doc.Node("6").ScalarInput("text"))
	assert.Equal(t, "low quality", doc.Node("7").ScalarInput("text"))
	n := doc.Node("3")
	assert.Equal(t, float64(0), n.ScalarInput("seed"), "negative seed floors to zero")
	assert.Equal(t, float64(25), n.ScalarInput("steps"))
	assert.Equal(t, 6.5, n.ScalarInput("cfg"))
	assert.Equal(t, "dpmpp_2m", n.ScalarInput("sampler_name"))
	assert.Equal(t, float64(768), doc.Node("5").ScalarInput("width"))
	assert.Equal(t, float64(512), doc.Node("5").ScalarInput("height"))

	// the base document never moved
	assert.Equal(t, "a cat", base.Node("6").ScalarInput("text"))
	assert.Equal(t, float64(42), base.Node("3").ScalarInput("seed"))
}

func TestExtractSettingsReadsBackInjectedValues(t *testing.T) {
	doc := mustParse(t, t2iDoc)
	s := ExtractSettings(doc)

	assert.Equal(t, "sd15.safetensors", s.Model)
	assert.Equal(t, "a cat", s.Prompt)
	assert.Equal(t, "blurry", s.Negative)
	assert.Equal(t, "512x768", s.Size)
	assert.Equal(t, "euler", s.Sampler)
	assert.Equal(t, "normal", s.Scheduler)
	require.NotNil(t, s.Seed)
	assert.Equal(t, uint32(42), *s.Seed)
	require.NotNil(t, s.Steps)
	assert.Equal(t, 20, *s.Steps)
	require.NotNil(t, s.Cfg)
	assert.Equal(t, 8.0, *s.Cfg)
}
