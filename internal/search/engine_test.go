package search

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsindex/internal/fscache"
)

// fixture indexes real entries under a temp dir so result stats succeed.
type fixture struct {
	root  string
	state *fscache.State
	vc    fscache.VolumeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{root: t.TempDir(), state: fscache.NewState(nil), vc: make(fscache.VolumeCache)}
}

func (f *fixture) file(t *testing.T, rel string) string {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))
	name := filepath.Base(p)
	f.vc[name] = append(f.vc[name], fscache.NewCachedPath(p, fscache.File))
	return p
}

func (f *fixture) dir(t *testing.T, rel string) string {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(p, 0o755))
	name := filepath.Base(p)
	f.vc[name] = append(f.vc[name], fscache.NewCachedPath(p, fscache.Directory))
	return p
}

func (f *fixture) engine(opts Options) *Engine {
	f.state.SetVolume(f.root, f.vc)
	BuildRoot(f.state, nil)
	return NewEngine(f.state, opts, nil)
}

func all(query string) Request {
	return Request{Query: query, AcceptFiles: true, AcceptDirectories: true}
}

func names(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Name)
	}
	return out
}

func TestExactMatchRanksFirst(t *testing.T) {
	f := newFixture(t)
	f.file(t, "a/readme_old.txt")
	f.file(t, "b/readme")
	e := f.engine(Options{})

	results, truncated := e.Search(all("readme"))

	require.Len(t, results, 2)
	assert.False(t, truncated)
	assert.Equal(t, "readme", results[0].Name)
	assert.Equal(t, ExactScore, results[0].Score)
	assert.Less(t, results[1].Score, ExactScore)
	assert.Equal(t, "readme_old.txt", results[1].Name)
	assert.Equal(t, "Text file", results[1].Description)
	assert.EqualValues(t, 5, results[1].Size)
}

func TestExactMatchIgnoresCase(t *testing.T) {
	f := newFixture(t)
	f.file(t, "README")
	e := f.engine(Options{})

	results, _ := e.Search(all("readme"))

	require.Len(t, results, 1)
	assert.Equal(t, ExactScore, results[0].Score)
}

func TestSearchTruncatesAtCap(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 520; i++ {
		f.file(t, fmt.Sprintf("reports/report-%03d.txt", i))
	}
	e := f.engine(Options{})

	results, truncated := e.Search(all("report"))

	assert.Len(t, results, DefaultMaxResults)
	assert.True(t, truncated)
}

func TestSearchCustomCap(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.file(t, fmt.Sprintf("log-%d.txt", i))
	}
	e := f.engine(Options{MaxResults: 3})

	results, truncated := e.Search(all("log"))

	assert.Len(t, results, 3)
	assert.True(t, truncated)
}

func TestSearchExtensionFilter(t *testing.T) {
	f := newFixture(t)
	f.file(t, "notes.md")
	f.file(t, "notes.txt")
	e := f.engine(Options{})

	results, _ := e.Search(all("notes.md"))

	assert.Equal(t, []string{"notes.md"}, names(results))
}

func TestSearchMultiWordQuery(t *testing.T) {
	f := newFixture(t)
	f.file(t, "docs/Quarterly_Report.pdf")
	f.file(t, "docs/Quarterly_Summary.pdf")
	e := f.engine(Options{})

	results, _ := e.Search(all("quarterly report.pdf"))
	assert.Equal(t, []string{"Quarterly_Report.pdf"}, names(results))

	results, _ = e.Search(all("  report   quarterly "))
	assert.Equal(t, []string{"Quarterly_Report.pdf"}, names(results))
}

func TestQueryExtension(t *testing.T) {
	for query, want := range map[string]string{
		"notes.md":             "md",
		"quarterly report.pdf": "pdf",
		"v1.2 notes":           "",
		"report":               "",
	} {
		ext, ok := queryExtension(query)
		assert.Equal(t, want, ext, query)
		assert.Equal(t, want != "", ok, query)
	}
}

func TestSearchJunkFilter(t *testing.T) {
	f := newFixture(t)
	f.file(t, "com.example.app")
	f.file(t, "example.txt")
	e := f.engine(Options{})

	results, _ := e.Search(all("example"))

	assert.Equal(t, []string{"example.txt"}, names(results))
}

func TestSearchTypeFilters(t *testing.T) {
	f := newFixture(t)
	f.file(t, "music/track.mp3")
	f.dir(t, "music")
	e := f.engine(Options{})

	files, _ := e.Search(Request{Query: "music", AcceptFiles: true})
	assert.Empty(t, files)

	dirs, _ := e.Search(Request{Query: "music", AcceptDirectories: true})
	require.Len(t, dirs, 1)
	assert.Equal(t, fscache.Directory, dirs[0].Kind)
	assert.Equal(t, "Folder", dirs[0].Description)

	none, _ := e.Search(Request{Query: "track"})
	assert.Empty(t, none)
}

func TestSearchSkipsDotfiles(t *testing.T) {
	if !isHidden(".x", "") {
		t.Skip("hidden files use attributes on this platform")
	}
	f := newFixture(t)
	f.file(t, ".secret-config")
	f.file(t, "secret-plan.txt")
	e := f.engine(Options{})

	results, _ := e.Search(all("secret"))

	assert.Equal(t, []string{"secret-plan.txt"}, names(results))
}

func TestSearchSkipsVanishedEntries(t *testing.T) {
	f := newFixture(t)
	gone := f.file(t, "draft-1.txt")
	f.file(t, "draft-2.txt")
	e := f.engine(Options{})
	require.NoError(t, os.Remove(gone))

	results, _ := e.Search(all("draft"))

	assert.Equal(t, []string{"draft-2.txt"}, names(results))
}

func TestSearchBelowMinScore(t *testing.T) {
	f := newFixture(t)
	f.file(t, "alpha-beta.txt")
	e := f.engine(Options{MinScore: ExactScore})

	results, _ := e.Search(all("alpha"))

	assert.Empty(t, results)
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture(t)
	f.file(t, "anything.txt")
	e := f.engine(Options{})

	for _, q := range []string{"", "   ", "..."} {
		results, truncated := e.Search(all(q))
		assert.Empty(t, results, q)
		assert.False(t, truncated, q)
	}
}

func TestSearchRestrictsToMount(t *testing.T) {
	f := newFixture(t)
	f.file(t, "budget.xlsx")
	e := f.engine(Options{})

	other := t.TempDir()
	otherPath := filepath.Join(other, "budget.xlsx")
	require.NoError(t, os.WriteFile(otherPath, nil, 0o644))
	f.state.SetVolume(other, fscache.VolumeCache{"budget.xlsx": {fscache.NewCachedPath(otherPath, fscache.File)}})
	BuildRoot(f.state, nil)

	everywhere, _ := e.Search(all("budget"))
	assert.Len(t, everywhere, 2)

	req := all("budget")
	req.MountPoint = other
	scoped, _ := e.Search(req)
	require.Len(t, scoped, 1)
	assert.Equal(t, otherPath, scoped[0].Path)
	assert.Equal(t, "Microsoft Excel spreadsheet", scoped[0].Description)

	req.MountPoint = other + string(filepath.Separator)
	scoped, _ = e.Search(req)
	require.Len(t, scoped, 1, "trailing separator still names the volume")
	assert.Equal(t, otherPath, scoped[0].Path)
}

func TestDirectoryFlags(t *testing.T) {
	f := newFixture(t)
	repo := f.dir(t, "code/service")
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "go.mod"), []byte("module x\n"), 0o644))
	f.dir(t, "code/service-docs")
	e := f.engine(Options{})

	results, _ := e.Search(Request{Query: "service", AcceptDirectories: true})

	require.Len(t, results, 2)
	assert.Equal(t, "service", results[0].Name)
	assert.True(t, results[0].IsGitRepo)
	assert.True(t, results[0].IsProject)
	assert.False(t, results[1].IsGitRepo)
	assert.False(t, results[1].IsProject)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Go source file", Describe("go"))
	assert.Equal(t, "JPEG image", Describe(".JPG"))
	assert.Equal(t, "Unknown file type", Describe("nope"))
	assert.Equal(t, "Unknown file type", Describe(""))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "txt", extension("a.TXT"))
	assert.Equal(t, "gz", extension("a.tar.gz"))
	assert.Equal(t, "", extension(".bashrc"))
	assert.Equal(t, "", extension("Makefile"))
}
