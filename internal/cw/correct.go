// internal/cw/correct.go
package cw

import (
	"strings"

	lev "github.com/agnivade/levenshtein"
)

// WordPattern is a frequently-used CW word or abbreviation, used by
// Corrector to flag likely mis-copies in noisy decodes.
type WordPattern struct {
	Text     string
	Priority int
}

// CommonWordPatterns are frequently exchanged words and Q codes, ordered
// roughly by how often they appear on the air. Corrector uses these as
// reference points, not as a dictionary to silently substitute into the
// decoded stream.
var CommonWordPatterns = []WordPattern{
	{Text: "CQ", Priority: 10},
	{Text: "DE", Priority: 10},
	{Text: "73", Priority: 9},
	{Text: "5NN", Priority: 9},
	{Text: "599", Priority: 8},
	{Text: "QTH", Priority: 7},
	{Text: "QRZ", Priority: 7},
	{Text: "QSO", Priority: 7},
	{Text: "QSL", Priority: 7},
	{Text: "TU", Priority: 8},
	{Text: "GM", Priority: 7},
	{Text: "GA", Priority: 7},
	{Text: "GE", Priority: 7},
	{Text: "UR", Priority: 6},
	{Text: "FB", Priority: 6},
	{Text: "ES", Priority: 6},
	{Text: "HR", Priority: 5},
}

// Match is a candidate correction for a decoded word.
type Match struct {
	Pattern    WordPattern
	Confidence float64
}

// Corrector flags decoded words that are an exact (confidence 1.0) or
// close edit-distance match to a common pattern, the latter being the kind
// of thing a single dropped or inserted element produces. It never rewrites the decoded stream
// itself; callers decide whether to surface a suggestion.
type Corrector struct {
	minConfidence float64
	matchCounts   map[string]int
}

// NewCorrector builds a Corrector with the given confidence floor
// (0.0-1.0); words scoring below it are not reported as matches.
func NewCorrector(minConfidence float64) *Corrector {
	if minConfidence <= 0 {
		minConfidence = 0.7
	}
	return &Corrector{
		minConfidence: minConfidence,
		matchCounts:   make(map[string]int),
	}
}

// Suggest compares word against CommonWordPatterns and returns the
// highest-confidence match at or above the confidence floor, preferring
// higher Priority on ties.
func (c *Corrector) Suggest(word string) (Match, bool) {
	word = strings.ToUpper(strings.TrimSpace(word))
	if word == "" {
		return Match{}, false
	}

	var best Match
	found := false
	for _, p := range CommonWordPatterns {
		conf := similarity(word, p.Text)
		if conf < c.minConfidence {
			continue
		}
		if !found || conf > best.Confidence ||
			(conf == best.Confidence && p.Priority > best.Pattern.Priority) {
			best = Match{Pattern: p, Confidence: conf}
			found = true
		}
	}
	if found {
		c.matchCounts[best.Pattern.Text]++
	}
	return best, found
}

// MatchCounts returns a copy of how many times each pattern has been
// suggested so far.
func (c *Corrector) MatchCounts() map[string]int {
	out := make(map[string]int, len(c.matchCounts))
	for k, v := range c.matchCounts {
		out[k] = v
	}
	return out
}

// Reset clears accumulated match counts.
func (c *Corrector) Reset() {
	c.matchCounts = make(map[string]int)
}

// similarity returns a normalized Levenshtein similarity in [0,1]: 1 means
// identical, 0 means completely dissimilar relative to the longer word.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	dist := lev.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}
