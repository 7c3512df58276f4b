package translate

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tabletalk/tabletalk/internal/schema"
)

// Token is one unit of the normalized query text. Quoted literals survive
// verbatim; everything else is lowercased.
type Token struct {
	Text    string
	Quoted  bool
	Numeric bool
}

// Correction records one vocabulary repair for observability.
type Correction struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// Normalizer tokenizes raw query text and repairs near-miss schema
// vocabulary with bounded edit distance. It never fails: worst case the
// input passes through unchanged with an empty corrections list.
type Normalizer struct{}

// NewNormalizer returns a ready Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize tokenizes raw and corrects tokens against the schema
// vocabulary. A token is corrected only when exactly one candidate is
// within its length-proportional edit budget and strictly closer than
// every other candidate; ties and distant matches leave the token as
// typed.
func (n *Normalizer) Normalize(raw string, sc schema.Context) ([]Token, []Correction) {
	tokens := n.Tokenize(raw)
	var corrections []Correction
	for i, tok := range tokens {
		if tok.Quoted || tok.Numeric {
			continue
		}
		if _, reserved := reservedWords[tok.Text]; reserved {
			continue
		}
		candidates := correctionCandidates(tokens, i, sc)
		if containsWord(candidates, tok.Text) {
			continue
		}
		corrected, ok := closestWithin(tok.Text, candidates)
		if !ok {
			continue
		}
		corrections = append(corrections, Correction{Original: tok.Text, Corrected: corrected})
		tokens[i].Text = corrected
	}
	return tokens, corrections
}

// Tokenize splits raw text into lowercase word and number tokens,
// preserving single- or double-quoted spans as single verbatim tokens.
func (n *Normalizer) Tokenize(raw string) []Token {
	var tokens []Token
	runes := []rune(raw)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '\'' || r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != r {
				end++
			}
			if text := string(runes[i+1 : end]); text != "" {
				tokens = append(tokens, Token{Text: text, Quoted: true})
			}
			i = end + 1
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			end := i
			numberish := unicode.IsDigit(r)
			for end < len(runes) {
				c := runes[end]
				if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
					end++
					continue
				}
				if numberish && c == '.' && end+1 < len(runes) && unicode.IsDigit(runes[end+1]) {
					end++
					continue
				}
				break
			}
			text := strings.ToLower(string(runes[i:end]))
			_, err := strconv.ParseFloat(text, 64)
			tokens = append(tokens, Token{Text: text, Numeric: err == nil})
			i = end
		default:
			i++
		}
	}
	return tokens
}

// JoinTokens renders a token sequence back into one normalized line, used
// for cache keys and model prompts.
func JoinTokens(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		if t.Quoted {
			parts[i] = "'" + t.Text + "'"
		} else {
			parts[i] = t.Text
		}
	}
	return strings.Join(parts, " ")
}

// correctionCandidates builds the vocabulary a token may be corrected
// against: every column name, plus the sample values of any categorical
// column named within the two preceding tokens. Sample values only enter
// the pool next to their column so that short value words cannot hijack
// unrelated parts of the query.
func correctionCandidates(tokens []Token, idx int, sc schema.Context) []string {
	candidates := make([]string, 0, len(sc.Columns))
	seen := make(map[string]struct{})
	add := func(word string) {
		word = strings.ToLower(word)
		if word == "" {
			return
		}
		if _, dup := seen[word]; dup {
			return
		}
		seen[word] = struct{}{}
		candidates = append(candidates, word)
	}
	for _, col := range sc.Columns {
		add(col.Name)
	}
	for back := 1; back <= 2; back++ {
		j := idx - back
		if j < 0 {
			break
		}
		col, ok := sc.Column(tokens[j].Text)
		if !ok || col.Type != schema.TypeCategorical {
			continue
		}
		for _, sample := range col.SampleValues {
			add(sample)
		}
	}
	return candidates
}

// maxEditDistance is the correction budget for a token of the given length.
func maxEditDistance(length int) int {
	if length <= 5 {
		return 1
	}
	return 2
}

// closestWithin returns the unique candidate closest to token, provided it
// is within the edit budget and strictly closer than the runner-up.
func closestWithin(token string, candidates []string) (string, bool) {
	const far = 1 << 30
	best, runnerUp := far, far
	bestWord := ""
	for _, cand := range candidates {
		d := levenshtein(token, cand)
		switch {
		case d < best:
			runnerUp = best
			best = d
			bestWord = cand
		case d < runnerUp:
			runnerUp = d
		}
	}
	if bestWord == "" || best > maxEditDistance(len(token)) || best == runnerUp {
		return "", false
	}
	return bestWord, true
}

func containsWord(words []string, w string) bool {
	for _, word := range words {
		if word == w {
			return true
		}
	}
	return false
}

// levenshtein computes edit distance with a rolling two-row table.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// reservedWords are template vocabulary and filler that are never
// fuzzy-matched against schema names.
var reservedWords = map[string]struct{}{
	// filler
	"the": {}, "a": {}, "an": {}, "of": {}, "by": {}, "per": {}, "for": {},
	"each": {}, "in": {}, "on": {}, "at": {}, "with": {}, "and": {}, "or": {},
	"to": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"not": {}, "no": {},
	// question words and imperatives
	"show": {}, "list": {}, "give": {}, "me": {}, "all": {}, "what": {},
	"which": {}, "how": {}, "many": {}, "much": {}, "number": {},
	// ranking vocabulary
	"top": {}, "bottom": {}, "highest": {}, "lowest": {}, "best": {},
	"worst": {}, "largest": {}, "smallest": {}, "first": {}, "last": {},
	// aggregation verbs
	"sum": {}, "total": {}, "average": {}, "avg": {}, "mean": {},
	"count": {}, "min": {}, "minimum": {}, "max": {}, "maximum": {},
	// comparator vocabulary
	"above": {}, "over": {}, "greater": {}, "more": {}, "than": {},
	"below": {}, "under": {}, "less": {}, "fewer": {}, "least": {},
	"most": {}, "equal": {}, "equals": {}, "contains": {}, "containing": {},
	"where": {}, "between": {},
	// row vocabulary
	"rows": {}, "records": {}, "entries": {}, "values": {},
}
