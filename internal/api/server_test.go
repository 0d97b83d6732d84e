package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsindex/internal/fscache"
	"fsindex/internal/search"
	"fsindex/internal/tags"
	"fsindex/internal/volume"
)

type fakeVolumes struct {
	ready    bool
	volumes  []volume.Volume
	listErr  error
	rescans  []string
	rescanFn func(mount string) error
}

func (f *fakeVolumes) List() ([]volume.Volume, error) { return f.volumes, f.listErr }
func (f *fakeVolumes) Ready() bool                    { return f.ready }
func (f *fakeVolumes) Rescan(_ context.Context, mount string) error {
	f.rescans = append(f.rescans, mount)
	if f.rescanFn != nil {
		return f.rescanFn(mount)
	}
	return nil
}

type fakeSearcher struct {
	last    search.Request
	results []search.Result
	more    bool
}

func (f *fakeSearcher) Search(req search.Request) ([]search.Result, bool) {
	f.last = req
	return f.results, f.more
}

type testEnv struct {
	server   *Server
	volumes  *fakeVolumes
	searcher *fakeSearcher
	state    *fscache.State
	tags     *tags.Cache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tagCache, err := tags.New(context.Background(), 8,
		tags.NewStore(filepath.Join(t.TempDir(), "tags.bin")), time.Hour, nil)
	require.NoError(t, err)

	env := &testEnv{
		volumes:  &fakeVolumes{ready: true},
		searcher: &fakeSearcher{},
		state:    fscache.NewState(nil),
		tags:     tagCache,
	}
	env.server = NewServer(Deps{
		Volumes:     env.volumes,
		Searcher:    env.searcher,
		Invalidator: env.state,
		Tags:        env.tags,
	}, []string{"*"}, nil)
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	env.volumes.ready = false
	assert.Equal(t, http.StatusServiceUnavailable, env.do("GET", "/healthz", "").Code)

	env.volumes.ready = true
	assert.Equal(t, http.StatusOK, env.do("GET", "/healthz", "").Code)
}

func TestListVolumes(t *testing.T) {
	env := newTestEnv(t)
	env.volumes.volumes = []volume.Volume{{Name: "Data", MountPoint: "/mnt/data", Size: 100, DiskType: "SSD"}}

	w := env.do("GET", "/volumes", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "/mnt/data", got[0]["mount_point"])
	assert.Equal(t, "SSD", got[0]["disk_type"])
}

func TestListVolumesError(t *testing.T) {
	env := newTestEnv(t)
	env.volumes.listErr = errors.New("no partitions")

	assert.Equal(t, http.StatusInternalServerError, env.do("GET", "/volumes", "").Code)
}

func TestSearchParameters(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.results = []search.Result{{Name: "a.txt", Path: "/a.txt", Kind: fscache.File, Score: 90}}
	env.searcher.more = true

	w := env.do("GET", "/search?q=a.txt&mount=/mnt/x&dirs=false", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, search.Request{Query: "a.txt", MountPoint: "/mnt/x", AcceptFiles: true}, env.searcher.last)

	var got struct {
		Results []map[string]any `json:"results"`
		More    bool             `json:"more"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.More)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "file", got.Results[0]["kind"])
}

func TestSearchEmptyResultsIsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/search?q=", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[],"more":false}`, w.Body.String())
}

func TestSearchBadFlag(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/search?q=x&files=maybe", "").Code)
}

func TestInvalidate(t *testing.T) {
	env := newTestEnv(t)
	env.state.SetVolume("/vol", fscache.VolumeCache{
		"a.txt": {fscache.NewCachedPath("/vol/a.txt", fscache.File)},
	})

	w := env.do("POST", "/invalidate", `{"path":"/vol/a.txt"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, env.state.Lookup("a.txt"))

	assert.Equal(t, http.StatusNotFound, env.do("POST", "/invalidate", `{"path":"/other/a.txt"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/invalidate", `{}`).Code)
}

func TestRescan(t *testing.T) {
	env := newTestEnv(t)
	env.volumes.rescanFn = func(mount string) error {
		if mount != "/vol" {
			return fmt.Errorf("%w: %s", fscache.ErrUnknownMount, mount)
		}
		return nil
	}

	assert.Equal(t, http.StatusOK, env.do("POST", "/rescan", `{"mount":"/vol"}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do("POST", "/rescan", `{"mount":"/nope"}`).Code)
	assert.Equal(t, []string{"/vol", "/nope"}, env.volumes.rescans)
}

func TestTags(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusCreated, env.do("POST", "/tags", `{"tag":"work"}`).Code)
	_, err := env.tags.AddPath("work", "/plan.md", "#abcdef")
	require.NoError(t, err)

	w := env.do("GET", "/tags", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["work"]`, w.Body.String())

	w = env.do("GET", "/tags/work", "")
	require.Equal(t, http.StatusOK, w.Code)
	var docs []tags.TagDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"/plan.md"}, docs[0].FilePaths)

	assert.Equal(t, http.StatusNotFound, env.do("GET", "/tags/none", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:1420")
	w := httptest.NewRecorder()

	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSearchEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	path := filepath.Join(root, "holiday_photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpg"), 0o644))
	state := fscache.NewState(nil)
	state.SetVolume(root, fscache.VolumeCache{"holiday_photo.jpg": {fscache.NewCachedPath(path, fscache.File)}})
	search.BuildRoot(state, nil)

	srv := NewServer(Deps{
		Volumes:     &fakeVolumes{ready: true},
		Searcher:    search.NewEngine(state, search.Options{}, nil),
		Invalidator: state,
	}, []string{"*"}, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/search?q=photo", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Results []search.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, path, got.Results[0].Path)
	assert.Equal(t, "JPEG image", got.Results[0].Description)
}
