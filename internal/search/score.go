package search

import (
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// ExactScore is awarded to a case-insensitive exact match. Fuzzy scores are
// capped just below it.
const ExactScore = 1000

var initAlgo sync.Once

// scorer ranks filenames against one lower-cased query. It is not safe for
// concurrent use because of the slab.
type scorer struct {
	query string
	// terms are the whitespace-separated parts of query, matched one by one.
	terms [][]rune
	slab  *util.Slab
}

func newScorer(lowerQuery string) *scorer {
	initAlgo.Do(func() { algo.Init("default") })
	fields := strings.Fields(lowerQuery)
	terms := make([][]rune, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, []rune(f))
	}
	return &scorer{
		query: lowerQuery,
		terms: terms,
		slab:  util.MakeSlab(100*1024, 2048),
	}
}

// score returns the fuzzy score of name, or 0 when some query term is not a
// subsequence of it. Term scores add up.
func (s *scorer) score(name string) int {
	lower := strings.ToLower(name)
	if lower == s.query {
		return ExactScore
	}
	if len(s.terms) == 0 {
		return 0
	}
	chars := util.ToChars([]byte(lower))
	total := 0
	for _, term := range s.terms {
		res, _ := algo.FuzzyMatchV2(false, false, true, &chars, term, false, s.slab)
		if res.Start < 0 || res.Score <= 0 {
			return 0
		}
		total += res.Score
	}
	if total >= ExactScore {
		return ExactScore - 1
	}
	return total
}
