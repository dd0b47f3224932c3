// Package fuzzy normalizes track titles and artist strings so that a track
// delisted from the primary catalog can be located on an alternate source
// by a plain-text search.
package fuzzy

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	featRegex       = regexp.MustCompile(`(?i)\s*[\(\[]?\s*(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?\s*`)
	versionRegex    = regexp.MustCompile(`(?i)\s*[\(\[]\s*(live|demo|remaster(ed)?|deluxe|instrumental|acoustic|radio edit)[^\)\]]*[\)\]]\s*`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// SearchKeyword builds the query string sent to the alternate source for a
// track identified by display name and compacted artist string. Version
// qualifiers and featured-artist suffixes are stripped; only the first
// listed artist is kept.
func (n *Normalizer) SearchKeyword(title, artists string) string {
	title = n.NormalizeTitle(title)
	primary := artists
	if i := strings.IndexAny(artists, "/,"); i >= 0 {
		primary = artists[:i]
	}
	primary = n.NormalizeArtist(primary)
	return strings.TrimSpace(title + " " + primary)
}

// NormalizeTitle strips featured-artist and version qualifiers and folds
// the remainder to comparable form.
func (n *Normalizer) NormalizeTitle(title string) string {
	title = featRegex.ReplaceAllString(title, " ")
	title = versionRegex.ReplaceAllString(title, " ")
	return n.fold(title)
}

// NormalizeArtist folds a single artist name to comparable form.
func (n *Normalizer) NormalizeArtist(artist string) string {
	return n.fold(artist)
}

// Similarity scores how closely two already-normalized strings match, in
// [0,1], using longest common subsequence over the longer length.
func (n *Normalizer) Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}
	return float64(lcs(s1, s2)) / float64(maxInt(len(s1), len(s2)))
}

// DurationTolerance scores how closely two track durations agree, in
// [0,1]. Within 5 seconds counts as the same recording; anything over a
// minute apart does not.
func (n *Normalizer) DurationTolerance(d1, d2 time.Duration) float64 {
	diff := d1 - d2
	if diff < 0 {
		diff = -diff
	}

	tolerance := 5 * time.Second
	if diff <= tolerance {
		return 1.0
	}
	maxDiff := time.Minute
	if diff >= maxDiff {
		return 0.0
	}
	return 1.0 - float64(diff-tolerance)/float64(maxDiff-tolerance)
}

// fold applies NFKD decomposition, drops combining marks and punctuation,
// and lowercases. CJK text passes through decomposition unchanged.
func (n *Normalizer) fold(text string) string {
	text = norm.NFKD.String(text)

	var b strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			b.WriteRune(r)
		}
	}
	text = punctRegex.ReplaceAllString(b.String(), " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(strings.ToLower(text))
}

func lcs(s1, s2 string) int {
	m, n := len(s1), len(s2)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if s1[i-1] == s2[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = maxInt(dp[i-1][j], dp[i][j-1])
			}
		}
	}
	return dp[m][n]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
