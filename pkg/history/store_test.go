package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "usage.json")
	s := NewJSONStore(path)

	h := sampleHistory()
	require.NoError(t, s.Save(ctx, h))

	loaded := s.Load(ctx)
	if diff := cmp.Diff(h.Records(), loaded.Records()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONStoreSurvivesNegativeMerge(t *testing.T) {
	ctx := context.Background()
	s := NewJSONStore(filepath.Join(t.TempDir(), "usage.json"))

	h := New(rec("2024-01-01", map[string]int64{"openai": 100}))
	h.Merge(rec("2024-01-02", map[string]int64{"openai": -5}))
	require.NoError(t, s.Save(ctx, h))

	loaded := s.Load(ctx)
	assert.Equal(t, []string{"2024-01-01"}, days(loaded.Records()))
}

func TestJSONStoreIgnoresStoredTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	content := `{"records":[{"date":"2024-01-02","providers":{"openai":50,"anthropic":30},"total":999999}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded := NewJSONStore(path).Load(context.Background())
	got, ok := loaded.Get("2024-01-02")
	require.True(t, ok)
	assert.EqualValues(t, 80, got.Total())
}

func TestJSONStoreWritesTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, NewJSONStore(path).Save(context.Background(), sampleHistory()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total": 80`)
	assert.Contains(t, string(data), `"date": "2024-01-01"`)
}

func TestJSONStoreMissingFile(t *testing.T) {
	h := NewJSONStore(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	assert.Equal(t, 0, h.Len())
}

func TestJSONStoreCorruptFile(t *testing.T) {
	cases := map[string]string{
		"garbage":        `{not json`,
		"bad date":       `{"records":[{"date":"yesterday","providers":{"openai":1}}]}`,
		"negative count": `{"records":[{"date":"2024-01-01","providers":{"openai":-5}}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "usage.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			h := NewJSONStore(path).Load(context.Background())
			assert.Equal(t, 0, h.Len())
		})
	}
}

func TestJSONStoreFoldsDuplicateDays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	content := `{"records":[
		{"date":"2024-01-02","providers":{"openai":1}},
		{"date":"2024-01-01","providers":{"openai":2}},
		{"date":"2024-01-02","providers":{"anthropic":3}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	h := NewJSONStore(path).Load(context.Background())
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, days(h.Records()))
	got, _ := h.Get("2024-01-02")
	assert.Equal(t, map[string]int64{"openai": 1, "anthropic": 3}, got.Providers)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}
