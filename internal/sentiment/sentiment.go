package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// Label is the five-way sentiment category of a text
type Label string

const (
	LabelPositive         Label = "positive"
	LabelSlightlyPositive Label = "slightly_positive"
	LabelNeutral          Label = "neutral"
	LabelSlightlyNegative Label = "slightly_negative"
	LabelNegative         Label = "negative"
)

// Polarity is the coarse three-way category shared by every agreement metric
type Polarity string

const (
	Positive Polarity = "positive"
	Neutral  Polarity = "neutral"
	Negative Polarity = "negative"
)

// Polarities lists the coarse categories in tie-break order
var Polarities = [3]Polarity{Positive, Neutral, Negative}

// Index returns the position of p in Polarities, or -1
func (p Polarity) Index() int {
	for i, c := range Polarities {
		if c == p {
			return i
		}
	}
	return -1
}

const (
	positiveThreshold         = 0.65
	slightlyPositiveThreshold = 0.55
	negativeThreshold         = 0.35
	slightlyNegativeThreshold = 0.45
)

// Hit is one lexicon match and the signed weight it contributed
type Hit struct {
	Term      string  `json:"term"`
	Weight    float64 `json:"weight"`
	Intensity float64 `json:"intensity"`
	Negated   bool    `json:"negated"`
	Score     float64 `json:"score"`
}

// Result is the outcome of scoring one text
type Result struct {
	Score           float64 `json:"score"`
	NormalizedScore float64 `json:"normalizedScore"`
	Category        Label   `json:"category"`
	Confidence      float64 `json:"confidence"`
	Matches         int     `json:"matches"`
	Tokens          int     `json:"tokens"`
	Hits            []Hit   `json:"hits"`
}

// Polarity collapses the result's category to three ways
func (r Result) Polarity() Polarity {
	return Categorize(r.Category)
}

// Analyze scores text against the fixed lexicon. It is a pure function.
func Analyze(text string) Result {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Result{
			NormalizedScore: 0.5,
			Category:        LabelNeutral,
			Hits:            []Hit{},
		}
	}

	consumed := make([]bool, len(tokens))
	hits := make([]Hit, 0, 4)
	sum := 0.0

	score := func(pos int, term string, weight float64) {
		h := Hit{Term: term, Weight: weight, Intensity: 1.0}
		if pos > 0 {
			h.Intensity = intensity(tokens[pos-1])
		}
		s := weight * h.Intensity
		for back := 1; back <= negationWindow && pos-back >= 0; back++ {
			if isNegation(tokens[pos-back]) {
				h.Negated = true
				s = -s * negationDamping
				break
			}
		}
		h.Score = s
		sum += s
		hits = append(hits, h)
	}

	// phrases first so their words are not counted again as single tokens
	for i := 0; i < len(tokens); i++ {
		for _, p := range lex.phrases {
			if !matchesAt(tokens, consumed, i, p.tokens) {
				continue
			}
			for k := range p.tokens {
				consumed[i+k] = true
			}
			score(i, strings.Join(p.tokens, " "), p.weight)
			i += len(p.tokens) - 1
			break
		}
	}

	for i, tok := range tokens {
		if consumed[i] {
			continue
		}
		if weight, ok := lex.words[tok]; ok {
			score(i, tok, weight)
		}
	}

	res := Result{
		Score:           sum,
		NormalizedScore: 0.5,
		Matches:         len(hits),
		Tokens:          len(tokens),
		Hits:            hits,
	}
	if res.Matches > 0 {
		res.NormalizedScore = clamp01((sum/float64(res.Matches) + 1) / 2)
	}
	res.Category = labelFor(res.NormalizedScore)
	res.Confidence = math.Min(1, 2*float64(res.Matches)/float64(res.Tokens))
	return res
}

func matchesAt(tokens []string, consumed []bool, start int, want []string) bool {
	if start+len(want) > len(tokens) {
		return false
	}
	for k, w := range want {
		if consumed[start+k] || tokens[start+k] != w {
			return false
		}
	}
	return true
}

func labelFor(normalized float64) Label {
	switch {
	case normalized >= positiveThreshold:
		return LabelPositive
	case normalized >= slightlyPositiveThreshold:
		return LabelSlightlyPositive
	case normalized <= negativeThreshold:
		return LabelNegative
	case normalized <= slightlyNegativeThreshold:
		return LabelSlightlyNegative
	default:
		return LabelNeutral
	}
}

// Categorize maps any label onto the three coarse polarities. Coarse labels
// map to themselves and anything unrecognized is neutral.
func Categorize(label Label) Polarity {
	switch label {
	case LabelPositive, LabelSlightlyPositive:
		return Positive
	case LabelNegative, LabelSlightlyNegative:
		return Negative
	default:
		return Neutral
	}
}

// PolarityOf is the text-to-polarity function every metric must share
func PolarityOf(text string) Polarity {
	return Analyze(text).Polarity()
}

// Tokenize lowercases text and splits it on anything that is not a letter,
// digit, hyphen or apostrophe. Hyphens and apostrophes survive only inside a
// token.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'')
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
