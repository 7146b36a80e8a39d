package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlewin/comfybatch/graphapi"
)

func TestWorkflowKey(t *testing.T) {
	assert.Equal(t, "t2i", WorkflowKey("/home/user/workflows/t2i.json"))
	assert.Equal(t, "t2i", WorkflowKey("t2i.json"))
	assert.Equal(t, "t2i", WorkflowKey("t2i"))
	assert.Equal(t, "my.workflow", WorkflowKey("my.workflow.json"))
}

func writeWorkflow(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	return path
}

func sampler() *graphapi.SamplerInfo {
	return &graphapi.SamplerInfo{NodeID: "3", ClassName: "KSampler", HasSeed: true}
}

func TestStorePutGet(t *testing.T) {
	path := writeWorkflow(t, t.TempDir(), "t2i.json")
	s := NewStore()

	_, ok := s.Get(path)
	assert.False(t, ok)

	s.Put(path, &graphapi.SchemaCatalog{}, sampler())
	e, ok := s.Get(path)
	require.True(t, ok)
	assert.Equal(t, path, e.Path)
	assert.Equal(t, "3", e.Sampler.NodeID)
}

func TestStoreEvictsWhenSourceNewer(t *testing.T) {
	path := writeWorkflow(t, t.TempDir(), "t2i.json")

	// entry timestamped well before the file's mtime
	s := NewStore(WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	s.Put(path, nil, sampler())

	_, ok := s.Get(path)
	assert.False(t, ok)
	assert.Zero(t, s.Len(), "stale entry evicted on read")
}

func TestStoreKeepsEntryForUntouchedSource(t *testing.T) {
	path := writeWorkflow(t, t.TempDir(), "t2i.json")
	s := NewStore(WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	s.Put(path, nil, sampler())

	_, ok := s.Get(path)
	assert.True(t, ok)
}

func TestStoreBaseNameAliasing(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	pathA := writeWorkflow(t, dirA, "t2i.json")
	pathB := writeWorkflow(t, dirB, "t2i.json")

	s := NewStore(WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	s.Put(pathA, nil, &graphapi.SamplerInfo{NodeID: "a"})
	s.Put(pathB, nil, &graphapi.SamplerInfo{NodeID: "b"})

	// same base name, one slot: the later put wins for both paths
	assert.Equal(t, 1, s.Len())
	e, ok := s.Get(pathA)
	require.True(t, ok)
	assert.Equal(t, "b", e.Sampler.NodeID)
}

func TestStoreClearAndNames(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	s.Put(writeWorkflow(t, dir, "zebra.json"), nil, sampler())
	s.Put(writeWorkflow(t, dir, "alpha.json"), nil, sampler())

	assert.Equal(t, []string{"alpha", "zebra"}, s.Names())

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Names())
}

func TestStorePersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	workflow := writeWorkflow(t, dir, "t2i.json")
	cacheFile := filepath.Join(dir, "cache.json")

	s := NewStore(WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	catalog, err := graphapi.ParseSchemaCatalog([]byte(`{
		"KSampler": {"input": {"required": {"sampler_name": [["euler", "ddim"]]}}}
	}`))
	require.NoError(t, err)
	s.Put(workflow, catalog, sampler())
	require.NoError(t, s.Save(cacheFile))

	restored := NewStore()
	require.NoError(t, restored.Load(cacheFile))
	e, ok := restored.Get(workflow)
	require.True(t, ok)
	assert.Equal(t, "KSampler", e.Sampler.ClassName)
	require.NotNil(t, e.Schema)
	assert.Equal(t, []string{"euler", "ddim"}, e.Schema.Class("KSampler").EnumChoices("sampler_name"))
}

func TestStoreLoadMissingFile(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Load(filepath.Join(t.TempDir(), "absent.json")))
	assert.Zero(t, s.Len())
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	require.Error(t, NewStore().Load(path))
}
