package graphapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderedDoc = `{
	"9": {"class_type": "SaveImage", "inputs": {"images": ["8", 0]}},
	"3": {"class_type": "KSampler", "inputs": {"seed": 5, "steps": 20}},
	"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "a cat"}}
}`

func TestParseGraphPreservesKeyOrder(t *testing.T) {
	doc, err := ParseGraph([]byte(orderedDoc))
	require.NoError(t, err)
	require.Equal(t, 3, doc.Len())
	assert.Equal(t, []string{"9", "3", "6"}, doc.IDs())
}

func TestParseGraphRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":      `not json at all`,
		"array top":     `[1, 2, 3]`,
		"scalar top":    `42`,
		"truncated":     `{"3": {"class_type": "KSampler"`,
		"non-node body": `{"3": [1, 2]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGraph([]byte(input))
			require.Error(t, err)
			var fe *FormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestParseGraphDeduplicatesNodeIDs(t *testing.T) {
	doc, err := ParseGraph([]byte(`{
		"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "first"}},
		"7": {"class_type": "CLIPTextEncode", "inputs": {"text": "other"}},
		"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "second"}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"6", "7"}, doc.IDs())
	assert.Equal(t, 2, doc.Len())
	assert.Equal(t, "second", doc.Node("6").ScalarInput("text"), "later duplicate wins")

	refs := doc.Find(func(_ string, n *Node) bool { return n.ClassType == "CLIPTextEncode" })
	assert.Len(t, refs, 2, "each id visited once")
}

func TestNodeInputAccess(t *testing.T) {
	doc, err := ParseGraph([]byte(orderedDoc))
	require.NoError(t, err)

	sampler := doc.Node("3")
	require.NotNil(t, sampler)
	assert.True(t, sampler.HasInput("seed"))
	assert.False(t, sampler.HasInput("cfg"))
	assert.Equal(t, float64(5), sampler.ScalarInput("seed"))

	save := doc.Node("9")
	require.NotNil(t, save)
	assert.True(t, save.HasInput("images"))
	assert.Nil(t, save.ScalarInput("images"), "links are not scalars")

	assert.Nil(t, doc.Node("missing"))
}

func TestFindFirstStopsAtFirstMatch(t *testing.T) {
	doc, err := ParseGraph([]byte(orderedDoc))
	require.NoError(t, err)

	id, n := doc.FindFirst(func(_ string, n *Node) bool { return n.HasInput("seed") || n.HasInput("text") })
	require.NotNil(t, n)
	assert.Equal(t, "3", id, "document order, not lexical order")

	id, n = doc.FindFirst(func(string, *Node) bool { return false })
	assert.Empty(t, id)
	assert.Nil(t, n)
}

func TestCloneIsIndependent(t *testing.T) {
	doc, err := ParseGraph([]byte(orderedDoc))
	require.NoError(t, err)

	clone := doc.Clone()
	clone.Node("6").Inputs["text"] = "a dog"
	clone.Node("3").Inputs["seed"] = float64(99)

	assert.Equal(t, "a cat", doc.Node("6").ScalarInput("text"))
	assert.Equal(t, float64(5), doc.Node("3").ScalarInput("seed"))
	assert.Equal(t, "a dog", clone.Node("6").ScalarInput("text"))
}

func TestCloneDeepCopiesLinkValues(t *testing.T) {
	doc, err := ParseGraph([]byte(orderedDoc))
	require.NoError(t, err)

	clone := doc.Clone()
	link := clone.Node("9").Inputs["images"].([]interface{})
	link[0] = "changed"

	orig := doc.Node("9").Inputs["images"].([]interface{})
	assert.Equal(t, "8", orig[0])
}

func TestMarshalRoundTripKeepsOrder(t *testing.T) {
	doc, err := ParseGraph([]byte(orderedDoc))
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)

	again, err := ParseGraph(out)
	require.NoError(t, err)
	assert.Equal(t, doc.IDs(), again.IDs())
	assert.Equal(t, "a cat", again.Node("6").ScalarInput("text"))
}

func TestUnmarshalAsEmbeddedValue(t *testing.T) {
	var wrapper struct {
		Prompt *GraphDocument `json:"prompt"`
	}
	err := json.Unmarshal([]byte(`{"prompt": `+orderedDoc+`}`), &wrapper)
	require.NoError(t, err)
	require.NotNil(t, wrapper.Prompt)
	assert.Equal(t, []string{"9", "3", "6"}, wrapper.Prompt.IDs())
}
