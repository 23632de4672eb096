package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/portal/internal/adapter"
	"github.com/mmcdole/portal/internal/domain"
)

const fakePageSize = 2

// fakeCatalog serves a tiny catalog with the API's paging and multi-id shapes
type fakeCatalog struct {
	requests atomic.Int32
	failWith int // Status returned for every request when non-zero
}

func (f *fakeCatalog) records(base, collection string) []map[string]any {
	switch collection {
	case "character":
		names := []string{"Rick Sanchez", "Morty Smith", "Summer Smith", "Beth Smith", "Jerry Smith"}
		out := make([]map[string]any, len(names))
		for i, name := range names {
			id := i + 1
			out[i] = map[string]any{
				"id": id, "name": name, "status": "Alive", "species": "Human", "type": "", "gender": "Male",
				"origin":   map[string]string{"name": "Earth (C-137)", "url": base + "/location/1"},
				"location": map[string]string{"name": "Citadel of Ricks", "url": base + "/location/2"},
				"image":    "",
				"episode":  []string{base + "/episode/1", base + "/episode/2"},
				"url":      fmt.Sprintf("%s/character/%d", base, id),
				"created":  "2017-11-04T18:48:46.250Z",
			}
		}
		return out
	case "location":
		return []map[string]any{
			{"id": 1, "name": "Earth (C-137)", "type": "Planet", "dimension": "Dimension C-137",
				"residents": []string{base + "/character/1"}, "url": base + "/location/1", "created": "2017-11-10T12:42:04.162Z"},
			{"id": 2, "name": "Citadel of Ricks", "type": "Space station", "dimension": "unknown",
				"residents": []string{}, "url": base + "/location/2", "created": "2017-11-10T13:08:13.191Z"},
		}
	case "episode":
		return []map[string]any{
			{"id": 1, "name": "Pilot", "air_date": "December 2, 2013", "episode": "S01E01",
				"characters": []string{base + "/character/1", base + "/character/2"}, "url": base + "/episode/1", "created": "2017-11-10T12:56:33.798Z"},
			{"id": 2, "name": "Lawnmower Dog", "air_date": "December 9, 2013", "episode": "S01E02",
				"characters": []string{base + "/character/1"}, "url": base + "/episode/2", "created": "2017-11-10T12:56:33.916Z"},
		}
	}
	return nil
}

func (f *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		fmt.Fprint(w, `{"error":"unavailable"}`)
		return
	}

	base := "http://" + r.Host
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if parts[0] == "" {
		writeJSON(w, map[string]string{
			"characters": base + "/character",
			"locations":  base + "/location",
			"episodes":   base + "/episode",
		})
		return
	}

	records := f.records(base, parts[0])
	if records == nil {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 2 {
		byID := make(map[int]map[string]any)
		for _, rec := range records {
			byID[rec["id"].(int)] = rec
		}
		ids := strings.Split(parts[1], ",")
		if len(ids) == 1 {
			id, _ := strconv.Atoi(ids[0])
			rec, ok := byID[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":"not found"}`)
				return
			}
			writeJSON(w, rec)
			return
		}
		out := []map[string]any{}
		for _, s := range ids {
			id, _ := strconv.Atoi(s)
			if rec, ok := byID[id]; ok {
				out = append(out, rec)
			}
		}
		writeJSON(w, out)
		return
	}

	// Listing with name filter and pages
	name := strings.ToLower(r.URL.Query().Get("name"))
	var matched []map[string]any
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec["name"].(string)), name) {
			matched = append(matched, rec)
		}
	}
	if len(matched) == 0 {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"There is nothing here"}`)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pages := (len(matched) + fakePageSize - 1) / fakePageSize
	if page > pages {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"There is nothing here"}`)
		return
	}
	start := (page - 1) * fakePageSize
	end := min(start+fakePageSize, len(matched))

	link := func(p int) *string {
		if p < 1 || p > pages {
			return nil
		}
		s := fmt.Sprintf("%s/%s?page=%d", base, parts[0], p)
		return &s
	}
	writeJSON(w, map[string]any{
		"info":    map[string]any{"count": len(matched), "pages": pages, "next": link(page + 1), "prev": link(page - 1)},
		"results": matched[start:end],
	})
}

func writeJSON(w io.Writer, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeAPI(t *testing.T) (*fakeCatalog, *httptest.Server) {
	t.Helper()
	fake := &fakeCatalog{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv
}

// runCLI executes the command tree with isolated config, logs and cache
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("PORTAL_LOGGING_FILE", filepath.Join(t.TempDir(), "portal.log"))
	t.Setenv("PORTAL_API_RATE_LIMIT", "0")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func decodeIDs(t *testing.T, out string) []int {
	t.Helper()
	var items []struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	ids := make([]int, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestListLoadsRequestedPages(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "list", "character", "--pages", "2", "-o", "json")
	require.NoError(t, err)

	if diff := cmp.Diff([]int{1, 2, 3, 4}, decodeIDs(t, out)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestListStopsAtEndOfData(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, stderr, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "list", "character", "--pages", "10")
	require.NoError(t, err)

	assert.Contains(t, out, "Jerry Smith")
	assert.Contains(t, stderr, "5 characters (filter: all, end of data)")
}

func TestListAppliesServerFilter(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "list", "location", "--name", "citadel", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, decodeIDs(t, out))
}

func TestListRejectsInvalidFilters(t *testing.T) {
	_, srv := newFakeAPI(t)

	_, _, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "list", "episode", "--status", "alive")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidFilter))

	_, _, err = runCLI(t, "--base-url", srv.URL, "--no-cache", "list", "character", "--status", "zombie")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidFilter))

	_, _, err = runCLI(t, "list", "planet")
	assert.ErrorContains(t, err, "unknown kind")
}

func TestListRendersServerErrors(t *testing.T) {
	fake, srv := newFakeAPI(t)
	fake.failWith = http.StatusServiceUnavailable

	_, _, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "list", "episode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Catalog server error (503)")
}

func TestShowResolvesRelations(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "show", "character", "1", "-o", "json")
	require.NoError(t, err)

	var view struct {
		Item struct {
			Name string `json:"name"`
		} `json:"item"`
		Related map[string][]struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"related"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))

	assert.Equal(t, "Rick Sanchez", view.Item.Name)
	require.Len(t, view.Related["episodes"], 2)
	assert.Equal(t, "Pilot", view.Related["episodes"][0].Name)
	require.Len(t, view.Related["origin"], 1)
	assert.Equal(t, 1, view.Related["origin"][0].ID)
	assert.Equal(t, 2, view.Related["location"][0].ID)
}

func TestShowTableAndMissingRecord(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "show", "episode", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "S01E01 Pilot")
	assert.Contains(t, out, "Characters (2)")
	assert.Contains(t, out, "Morty Smith")

	_, _, err = runCLI(t, "--base-url", srv.URL, "--no-cache", "show", "character", "99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrItemNotFound))

	_, _, err = runCLI(t, "show", "character", "abc")
	assert.ErrorContains(t, err, "invalid id")
}

func TestSyncThenSearchOffline(t *testing.T) {
	fake, srv := newFakeAPI(t)
	cacheDir := t.TempDir()

	out, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "sync", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "Characters")
	assert.Contains(t, out, "Episodes")

	before := fake.requests.Load()
	out, _, err = runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "search", "smith", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, before, fake.requests.Load(), "search never touches the network")

	var hits []struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	assert.Len(t, hits, 4)
	for _, h := range hits {
		assert.Equal(t, "character", h.Kind)
	}
}

func TestFreshCacheSkipsNetwork(t *testing.T) {
	fake, srv := newFakeAPI(t)
	cacheDir := t.TempDir()

	_, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "list", "episode")
	require.NoError(t, err)
	before := fake.requests.Load()

	out, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "list", "episode", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, before, fake.requests.Load())
	assert.Equal(t, []int{1, 2}, decodeIDs(t, out))

	// --reload forces the first page again
	_, _, err = runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "list", "episode", "--reload")
	require.NoError(t, err)
	assert.Greater(t, fake.requests.Load(), before)
}

func TestFreshFilteredCacheSkipsNetwork(t *testing.T) {
	fake, srv := newFakeAPI(t)
	cacheDir := t.TempDir()

	_, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "list", "character", "--name", "smith")
	require.NoError(t, err)
	before := fake.requests.Load()
	require.Equal(t, int32(1), before)

	out, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "list", "character", "--name", "smith", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, before, fake.requests.Load())
	assert.Equal(t, []int{2, 3}, decodeIDs(t, out))

	// Another filter replaces the cached partition
	_, _, err = runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "list", "character", "--name", "rick")
	require.NoError(t, err)
	assert.Equal(t, before+1, fake.requests.Load())
}

func TestFilteredSyncFetchesEachPageOnce(t *testing.T) {
	fake, srv := newFakeAPI(t)
	cacheDir := t.TempDir()

	out, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "sync", "character", "--name", "smith", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "Characters")

	// Four matches at two per page
	assert.Equal(t, int32(2), fake.requests.Load())
}

func TestCacheInfoAndClear(t *testing.T) {
	_, srv := newFakeAPI(t)
	cacheDir := t.TempDir()

	_, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "--cache-driver", "sqlite", "sync", "location", "-q")
	require.NoError(t, err)

	out, _, err := runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "--cache-driver", "sqlite", "cache", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Locations")
	assert.Contains(t, out, "yes")

	out, _, err = runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "--cache-driver", "sqlite", "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared")

	out, _, err = runCLI(t, "--base-url", srv.URL, "--cache-dir", cacheDir, "--cache-driver", "sqlite", "search", "earth", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestCachePath(t *testing.T) {
	dir := t.TempDir()

	out, _, err := runCLI(t, "--cache-dir", dir, "--cache-driver", "sqlite", "cache", "path")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, dir))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "portal.sqlite"))

	out, _, err = runCLI(t, "--no-cache", "cache", "path")
	require.NoError(t, err)
	assert.Equal(t, "(memory)\n", out)
}

func TestConfigInitAndShow(t *testing.T) {
	t.Setenv("PORTAL_LOGGING_FILE", "-")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--config", path, "--base-url", "http://localhost:9/api", "config", "init"})
	require.NoError(t, cmd.Execute())

	cfg, err := adapter.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9/api", cfg.API.BaseURL)

	cmd = newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--config", path, "config", "init"})
	assert.ErrorContains(t, cmd.Execute(), "already exists")

	var out bytes.Buffer
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "config", "show"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "base_url: http://localhost:9/api")
	assert.Contains(t, out.String(), "timeout: 1h0m0s")
}

func TestCheck(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, _, err := runCLI(t, "--base-url", srv.URL, "--no-cache", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "characters")
	assert.Contains(t, out, srv.URL+"/episode")
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "portal dev\n", out)
}

func TestRootNeedsTerminal(t *testing.T) {
	orig := isTerminal
	isTerminal = func(*os.File) bool { return false }
	defer func() { isTerminal = orig }()

	_, _, err := runCLI(t, "--no-cache")
	assert.ErrorIs(t, err, errNoTerminal)
}

func TestServeMetrics(t *testing.T) {
	addr, stop, err := serveMetrics("127.0.0.1:0", adapter.NullLogger())
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
