package search

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"fsindex/internal/fscache"
	"fsindex/internal/metrics"
)

const (
	DefaultMaxResults = 500
	DefaultMinScore   = 20
)

// DefaultJunkSubstrings hide generated and system filenames from results.
var DefaultJunkSubstrings = []string{"$$_systemapps_", "shared.index", "com."}

// Options tune the engine. Zero values fall back to the defaults.
type Options struct {
	MaxResults     int
	MinScore       int
	JunkSubstrings []string
}

// Request is one search query.
type Request struct {
	Query string
	// MountPoint restricts the lookup to one volume. Empty, or a mount
	// point that is not cached, searches every volume.
	MountPoint        string
	AcceptFiles       bool
	AcceptDirectories bool
}

// Result is one ranked match.
type Result struct {
	Name         string           `json:"name"`
	Path         string           `json:"path"`
	Size         int64            `json:"size"`
	ModifiedSecs int64            `json:"modified_secs"`
	Kind         fscache.FileType `json:"kind"`
	Description  string           `json:"description"`
	IsGitRepo    bool             `json:"is_git_repo,omitempty"`
	IsProject    bool             `json:"is_project,omitempty"`
	Score        int              `json:"score"`
}

// Engine answers queries against the live cache. Searches only take the read
// lock, and only while collecting candidate paths.
type Engine struct {
	state  *fscache.State
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an engine over state.
func NewEngine(state *fscache.State, opts Options, logger *zap.Logger) *Engine {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}
	if opts.JunkSubstrings == nil {
		opts.JunkSubstrings = DefaultJunkSubstrings
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{state: state, opts: opts, logger: logger.Named("search"), now: time.Now}
}

type candidate struct {
	name string
	path fscache.CachedPath
}

// Search returns the matches for req ordered by descending score, and
// whether the result cap cut the search short.
func (e *Engine) Search(req Request) ([]Result, bool) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, false
	}

	candidates := e.candidates(tokens, req.MountPoint)
	lowerQuery := strings.ToLower(query)
	wantExt, hasExt := queryExtension(lowerQuery)
	sc := newScorer(lowerQuery)
	now := e.now()

	results := make([]Result, 0, min(len(candidates), e.opts.MaxResults))
	truncated := false
	for _, c := range candidates {
		if c.path.FileType == fscache.File && !req.AcceptFiles {
			continue
		}
		if c.path.FileType == fscache.Directory && !req.AcceptDirectories {
			continue
		}
		if e.isJunk(c.name) {
			continue
		}
		if hasExt && extension(c.name) != wantExt {
			continue
		}
		if isHidden(c.name, c.path.FilePath) {
			continue
		}

		score := sc.score(c.name)
		if score < e.opts.MinScore {
			continue
		}
		info, err := os.Stat(c.path.FilePath)
		if err != nil {
			continue
		}
		results = append(results, e.result(c, info, score, now))

		if len(results) >= e.opts.MaxResults {
			truncated = true
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	metrics.RecordSearch(time.Since(start), truncated)
	e.logger.Debug("search finished",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Bool("truncated", truncated),
		zap.Duration("took", time.Since(start)))
	return results, truncated
}

// candidates unions the token buckets for tokens and copies out every cached
// path for the resulting filenames, in sorted filename order.
func (e *Engine) candidates(tokens []string, mount string) []candidate {
	if mount != "" {
		mount = filepath.Clean(mount)
	}
	var out []candidate
	e.state.Read(func(system fscache.SystemCache, index fscache.TokenIndex) {
		names := make(map[string]struct{})
		for _, token := range tokens {
			for _, name := range index[token] {
				names[name] = struct{}{}
			}
		}
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)

		volumes := make([]fscache.VolumeCache, 0, len(system))
		if vc, ok := system[mount]; ok {
			volumes = append(volumes, vc)
		} else {
			mounts := make([]string, 0, len(system))
			for m := range system {
				mounts = append(mounts, m)
			}
			sort.Strings(mounts)
			for _, m := range mounts {
				volumes = append(volumes, system[m])
			}
		}

		for _, name := range sorted {
			for _, vc := range volumes {
				for _, p := range vc[name] {
					out = append(out, candidate{name: name, path: p})
				}
			}
		}
	})
	return out
}

func (e *Engine) result(c candidate, info os.FileInfo, score int, now time.Time) Result {
	r := Result{
		Name:         c.name,
		Path:         c.path.FilePath,
		Kind:         c.path.FileType,
		ModifiedSecs: max(int64(now.Sub(info.ModTime())/time.Second), 0),
		Score:        score,
	}
	if c.path.FileType == fscache.Directory {
		r.Description = folderDescription
		r.IsGitRepo = IsGitRepo(c.path.FilePath)
		r.IsProject = IsProject(c.path.FilePath)
		return r
	}
	r.Size = info.Size()
	r.Description = Describe(extension(c.name))
	return r
}

func (e *Engine) isJunk(name string) bool {
	for _, junk := range e.opts.JunkSubstrings {
		if strings.Contains(name, junk) {
			return true
		}
	}
	return false
}

// queryExtension returns the text after the last '.' of the query's last
// term, when that term has one.
func queryExtension(lowerQuery string) (string, bool) {
	fields := strings.Fields(lowerQuery)
	if len(fields) == 0 {
		return "", false
	}
	last := fields[len(fields)-1]
	i := strings.LastIndexByte(last, '.')
	if i < 0 {
		return "", false
	}
	return last[i+1:], true
}

// extension returns the lower-cased extension of name without its dot. A
// leading dot alone does not start an extension.
func extension(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
