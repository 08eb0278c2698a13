package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meghashyamc/glimpse/config"
	"github.com/meghashyamc/glimpse/db/indexfile"
	"github.com/meghashyamc/glimpse/db/kvdb"
	"github.com/meghashyamc/glimpse/logger"
)

// memStore is an in-memory MetadataStore for tests.
type memStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]string
}

func newMemStore() *memStore {
	return &memStore{buckets: map[string]map[string]string{}}
}

func (m *memStore) Set(bucket, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = map[string]string{}
	}
	m.buckets[bucket][key] = value
	return nil
}

func (m *memStore) Get(bucket, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.buckets[bucket][key]
	if !ok {
		return "", &kvdb.NotFoundError{Key: key}
	}
	return value, nil
}

func (m *memStore) Delete(bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

func (m *memStore) GetAllKeys(bucket string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.buckets[bucket] {
		keys = append(keys, key)
	}
	return keys, nil
}

func (m *memStore) Close() error { return nil }

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	markdown := "---\ntitle: \"Feeding Cats\"\n---\nCats eat twice a day.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cats.md"), []byte(markdown), 0o644))

	html := `<html><body><main><p>Dogs enjoy long walks.</p></main><script>x()</script></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dogs.html"), []byte(html), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fish.txt"), []byte("Fish swim in circles."), 0o644))

	return dir
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Input: config.InputConfig{
			BaseDirectory:     dir,
			URLPrefix:         "https://example.com",
			TitleBoost:        2.0,
			MinimumWordLength: 1,
			Stopwords:         []string{"a", "in", "the"},
			Files: []config.FileConfig{
				{Path: "cats.md", URL: "/cats"},
				{Path: "dogs.html", Title: "Dogs", URL: "/dogs", HTMLSelector: "main"},
				{Path: "fish.txt", Title: "Fish", URL: "/fish", TitleWeight: 3.0},
			},
		},
		Output: config.OutputConfig{
			ExcerptRadius:     80,
			ExcerptsPerResult: 5,
			ResultCap:         20,
			FuzzyDistance:     2,
			UnionFallback:     true,
			ExactBonus:        4.0,
			EditPenalty:       1.0,
			PrefixPenalty:     0.5,
			FrequencyWeight:   0.25,
		},
	}
}

func TestBuildRoundTrip(t *testing.T) {
	dir := writeCorpus(t)
	service := New(logger.New(), testConfig(dir), nil)

	blob, summary, err := service.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.DocumentCount)
	require.Empty(t, summary.Warnings)
	require.Equal(t, len(blob), summary.IndexBytes)

	reader, err := indexfile.Load(blob)
	require.NoError(t, err)
	require.Equal(t, 3, reader.DocCount())

	// The markdown document had no configured title, so the frontmatter
	// title fills in.
	doc, err := reader.Document(0)
	require.NoError(t, err)
	require.Equal(t, "Feeding Cats", doc.Title)
	require.Equal(t, "https://example.com/cats", doc.URL)

	// The HTML selector keeps only <main>, so script content never lands
	// in the dictionary.
	_, found := reader.LookupExact("walks")
	require.True(t, found)
	_, found = reader.LookupExact("x")
	require.False(t, found)

	// Stopwords from the input config are frozen into the settings and
	// never indexed.
	require.Equal(t, []string{"a", "in", "the"}, reader.Settings().Stopwords)
	_, found = reader.LookupExact("the")
	require.False(t, found)

	// Per-file title weight overrides the global boost.
	doc, err = reader.Document(2)
	require.NoError(t, err)
	require.Equal(t, 3.0, doc.Fields[0].Weight)
	doc, err = reader.Document(1)
	require.NoError(t, err)
	require.Equal(t, 2.0, doc.Fields[0].Weight)
}

func TestBuildIsDeterministic(t *testing.T) {
	dir := writeCorpus(t)
	service := New(logger.New(), testConfig(dir), nil)

	first, _, err := service.Build(context.Background())
	require.NoError(t, err)
	second, _, err := service.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBuildWarningKeepsDocumentSlot(t *testing.T) {
	dir := writeCorpus(t)
	cfg := testConfig(dir)
	cfg.Input.Files[1].Path = "missing.html"

	service := New(logger.New(), cfg, nil)
	blob, summary, err := service.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Warnings, 1)
	require.Equal(t, "missing.html", summary.Warnings[0].Path)
	require.Equal(t, 3, summary.DocumentCount)

	reader, err := indexfile.Load(blob)
	require.NoError(t, err)
	require.Equal(t, 3, reader.DocCount())

	// Later documents keep their ids even when an earlier one failed.
	id, found := reader.LookupExact("fish")
	require.True(t, found)
	postings, err := reader.Postings(id)
	require.NoError(t, err)
	require.Equal(t, uint32(2), postings[0].DocID)
}

func TestBuildMissingTitleWarns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "untitled.txt"), []byte("some text"), 0o644))

	cfg := testConfig(dir)
	cfg.Input.Files = []config.FileConfig{{Path: "untitled.txt", URL: "/untitled"}}

	service := New(logger.New(), cfg, nil)
	_, summary, err := service.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Warnings, 1)
	require.Contains(t, summary.Warnings[0].Reason, "title")
}

func TestBuildNoDocumentsFails(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Input.Files = nil

	service := New(logger.New(), cfg, nil)
	_, _, err := service.Build(context.Background())
	require.Error(t, err)
}

func TestBuildCancelledContext(t *testing.T) {
	dir := writeCorpus(t)
	service := New(logger.New(), testConfig(dir), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := service.Build(ctx)
	require.Error(t, err)
}

func TestBuildRecordsMetadata(t *testing.T) {
	dir := writeCorpus(t)
	store := newMemStore()
	service := New(logger.New(), testConfig(dir), store)

	_, _, err := service.Build(context.Background())
	require.NoError(t, err)

	builds, err := store.GetAllKeys(kvdb.BuildsBucket)
	require.NoError(t, err)
	require.Len(t, builds, 1)

	sources, err := store.GetAllKeys(kvdb.SourcesBucket)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	// A second build over unchanged sources still re-indexes and records
	// a new build.
	_, _, err = service.Build(context.Background())
	require.NoError(t, err)
	builds, err = store.GetAllKeys(kvdb.BuildsBucket)
	require.NoError(t, err)
	require.Len(t, builds, 2)
}
