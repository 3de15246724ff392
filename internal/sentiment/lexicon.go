package sentiment

import (
	"sort"
	"strings"
)

// positiveTerms maps single words and fixed phrases to weights in (0, 1].
// Phrases are space separated and are matched before single tokens.
var positiveTerms = map[string]float64{
	"excellent":       0.9,
	"outstanding":     0.9,
	"perfect":         1.0,
	"great":           0.8,
	"impressive":      0.8,
	"good":            0.6,
	"nice":            0.5,
	"fine":            0.3,
	"ok":              0.2,
	"okay":            0.2,
	"adequate":        0.3,
	"satisfactory":    0.4,
	"accurate":        0.7,
	"correct":         0.6,
	"correctly":       0.6,
	"precise":         0.7,
	"relevant":        0.5,
	"helpful":         0.6,
	"useful":          0.6,
	"clear":           0.5,
	"complete":        0.5,
	"comprehensive":   0.6,
	"consistent":      0.5,
	"appropriate":     0.5,
	"reliable":        0.6,
	"solid":           0.5,
	"thorough":        0.6,
	"concise":         0.4,
	"informative":     0.6,
	"valid":           0.5,
	"reasonable":      0.4,
	"coherent":        0.5,
	"detailed":        0.5,
	"improved":        0.4,
	"matches":         0.4,
	"works":           0.3,
	"well-structured": 0.7,
	"well-written":    0.6,
	"high-quality":    0.7,
	"up-to-date":      0.4,
	"well done":       0.8,
	"spot on":         0.9,
	"good job":        0.8,
	"makes sense":     0.5,
	"high quality":    0.7,
	"works well":      0.7,
	"well structured": 0.7,
	"on point":        0.7,
	"as expected":     0.4,
}

// negativeTerms maps single words and fixed phrases to weights in [-1, 0).
var negativeTerms = map[string]float64{
	"terrible":            -0.9,
	"awful":               -0.9,
	"worst":               -0.9,
	"useless":             -0.8,
	"unusable":            -0.8,
	"nonsense":            -0.8,
	"hallucinated":        -0.8,
	"fabricated":          -0.8,
	"wrong":               -0.7,
	"incorrect":           -0.7,
	"inaccurate":          -0.7,
	"misleading":          -0.7,
	"broken":              -0.7,
	"bad":                 -0.6,
	"poor":                -0.6,
	"irrelevant":          -0.6,
	"worse":               -0.6,
	"fails":               -0.6,
	"failed":              -0.6,
	"mistake":             -0.6,
	"mistakes":            -0.6,
	"missing":             -0.5,
	"incomplete":          -0.5,
	"confusing":           -0.5,
	"unclear":             -0.5,
	"inconsistent":        -0.5,
	"error":               -0.5,
	"errors":              -0.5,
	"lacks":               -0.5,
	"lacking":             -0.5,
	"weak":                -0.5,
	"insufficient":        -0.5,
	"mismatch":            -0.5,
	"vague":               -0.4,
	"outdated":            -0.4,
	"superficial":         -0.4,
	"problem":             -0.4,
	"problems":            -0.4,
	"generic":             -0.3,
	"redundant":           -0.3,
	"duplicate":           -0.3,
	"limited":             -0.3,
	"issue":               -0.3,
	"issues":              -0.3,
	"low-quality":         -0.6,
	"off-topic":           -0.6,
	"error-prone":         -0.5,
	"makes no sense":      -0.8,
	"off topic":           -0.6,
	"way off":             -0.6,
	"missing information": -0.6,
	"hard to understand":  -0.5,
	"needs improvement":   -0.4,
	"out of date":         -0.4,
	"could be better":     -0.3,
	"low quality":         -0.6,
}

// intensifiers scale the hit that immediately follows them
var intensifiers = map[string]float64{
	"absolutely": 1.8,
	"extremely":  1.8,
	"completely": 1.6,
	"totally":    1.6,
	"very":       1.5,
	"highly":     1.5,
	"really":     1.3,
	"so":         1.3,
	"too":        1.3,
	"quite":      1.2,
	"fairly":     0.9,
	"rather":     0.9,
	"somewhat":   0.7,
	"slightly":   0.6,
	"barely":     0.5,
}

var negations = map[string]struct{}{
	"not":     {},
	"no":      {},
	"never":   {},
	"none":    {},
	"nothing": {},
	"neither": {},
	"nor":     {},
	"nobody":  {},
	"nowhere": {},
	"without": {},
	"cannot":  {},
	"hardly":  {},
}

const (
	negationWindow  = 3
	negationDamping = 0.8
)

type phrase struct {
	tokens []string
	weight float64
}

type lexicon struct {
	words   map[string]float64
	phrases []phrase // longest first
}

// lex is built once from the static tables above and never modified
var lex = buildLexicon()

func buildLexicon() lexicon {
	l := lexicon{words: make(map[string]float64)}
	add := func(terms map[string]float64) {
		for term, weight := range terms {
			parts := strings.Fields(term)
			if len(parts) == 1 {
				l.words[term] = weight
				continue
			}
			l.phrases = append(l.phrases, phrase{tokens: parts, weight: weight})
		}
	}
	add(positiveTerms)
	add(negativeTerms)

	sort.Slice(l.phrases, func(i, j int) bool {
		if len(l.phrases[i].tokens) != len(l.phrases[j].tokens) {
			return len(l.phrases[i].tokens) > len(l.phrases[j].tokens)
		}
		return strings.Join(l.phrases[i].tokens, " ") < strings.Join(l.phrases[j].tokens, " ")
	})
	return l
}

func isNegation(token string) bool {
	if _, ok := negations[token]; ok {
		return true
	}
	return strings.HasSuffix(token, "n't")
}

func intensity(token string) float64 {
	if m, ok := intensifiers[token]; ok {
		return m
	}
	return 1.0
}
