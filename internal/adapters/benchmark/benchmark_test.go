package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/evoloop/internal/logging"
	"github.com/example/evoloop/internal/models"
)

func TestDecode_JSONArray(t *testing.T) {
	in := `[{"instance_id": "a__b-1", "repo": "a/b", "problem_statement": "p", "test_patch": "t", "patch": "fix", "base_commit": "abc"}]`

	got, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.TaskInstance{ID: "a__b-1", Repo: "a/b", ProblemStatement: "p", TestPatch: "t", Patch: "fix", BaseCommit: "abc"}, got[0])
}

func TestDecode_JSONLines(t *testing.T) {
	in := "{\"instance_id\": \"x-1\", \"repo\": \"x\"}\n\n{\"instance_id\": \"x-2\", \"repo\": \"x\", \"extra\": 1}\n"

	got, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x-2", got[1].ID)
}

func TestDecode_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":       "  ",
		"missing id":  `[{"repo": "x"}]`,
		"bad line":    "{\"instance_id\": \"x\"}\n{oops",
		"empty array": `[]`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestFileCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	var b strings.Builder
	require.NoError(t, Encode(&b, []models.TaskInstance{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))

	got, err := NewFileCorpus(path).Instances(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = NewFileCorpus(filepath.Join(t.TempDir(), "missing.json")).Instances(context.Background())
	assert.Error(t, err)
}

// rowsServer serves total synthetic rows through the datasets-server API shape.
func rowsServer(t *testing.T, total int, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/rows", r.URL.Path)
		assert.Equal(t, "princeton-nlp/SWE-bench_Lite", r.URL.Query().Get("dataset"))
		assert.Equal(t, "test", r.URL.Query().Get("split"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		length, _ := strconv.Atoi(r.URL.Query().Get("length"))
		var rows []map[string]any
		for i := offset; i < offset+length && i < total; i++ {
			rows = append(rows, map[string]any{
				"row_idx": i,
				"row": map[string]any{
					"instance_id":       fmt.Sprintf("repo__repo-%d", i),
					"repo":              "repo/repo",
					"problem_statement": "p",
					"test_patch":        "t",
					"patch":             "fix",
				},
				"truncated_cells": []string{},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"rows": rows, "num_rows_total": total})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHubCorpus_Pages(t *testing.T) {
	var calls int32
	srv := rowsServer(t, 230, &calls)
	cache := filepath.Join(t.TempDir(), "cache", "lite.jsonl")

	corpus := NewHubCorpus(HubOptions{
		BaseURL:   srv.URL,
		Dataset:   "princeton-nlp/SWE-bench_Lite",
		CachePath: cache,
		Logger:    logging.Discard(),
	})

	got, err := corpus.Instances(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 230)
	assert.Equal(t, "repo__repo-229", got[229].ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// Second call is served from memory.
	_, err = corpus.Instances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// A fresh corpus reads the cache file instead of the network.
	fresh := NewHubCorpus(HubOptions{BaseURL: srv.URL, Dataset: "princeton-nlp/SWE-bench_Lite", CachePath: cache, Logger: logging.Discard()})
	cached, err := fresh.Instances(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 230)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHubCorpus_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"dataset not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	corpus := NewHubCorpus(HubOptions{BaseURL: srv.URL, Dataset: "nope", Logger: logging.Discard()})
	_, err := corpus.Instances(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
