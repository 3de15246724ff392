package analysis

import (
	"sort"

	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/extraction"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
)

// Counts tallies coarse polarities
type Counts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Add records one polarity. Unknown values count as neutral.
func (c *Counts) Add(p sentiment.Polarity) {
	switch p {
	case sentiment.Positive:
		c.Positive++
	case sentiment.Negative:
		c.Negative++
	default:
		c.Neutral++
	}
}

// Merge adds every tally of o into c
func (c *Counts) Merge(o Counts) {
	c.Positive += o.Positive
	c.Neutral += o.Neutral
	c.Negative += o.Negative
}

// Get returns the tally of one polarity
func (c Counts) Get(p sentiment.Polarity) int {
	switch p {
	case sentiment.Positive:
		return c.Positive
	case sentiment.Negative:
		return c.Negative
	case sentiment.Neutral:
		return c.Neutral
	}
	return 0
}

func (c Counts) Total() int {
	return c.Positive + c.Neutral + c.Negative
}

// Dominant is the majority polarity. Ties resolve in the fixed order
// positive, neutral, negative; an empty tally is neutral.
func (c Counts) Dominant() sentiment.Polarity {
	if c.Total() == 0 {
		return sentiment.Neutral
	}
	best := sentiment.Polarities[0]
	for _, p := range sentiment.Polarities[1:] {
		if c.Get(p) > c.Get(best) {
			best = p
		}
	}
	return best
}

// Dominant tallies a list of polarities and returns the majority
func Dominant(ps []sentiment.Polarity) sentiment.Polarity {
	var c Counts
	for _, p := range ps {
		c.Add(p)
	}
	return c.Dominant()
}

// Engine holds the per-pass sentiment memo shared by every analysis so that
// they all categorize text identically. It is not safe for concurrent use;
// create one per pass.
type Engine struct {
	memo map[string]sentiment.Result
}

func NewEngine() *Engine {
	return &Engine{memo: make(map[string]sentiment.Result)}
}

// Sentiment scores the text of a comment
func (e *Engine) Sentiment(c extraction.Comment) sentiment.Result {
	if r, ok := e.memo[c.Text]; ok {
		return r
	}
	r := sentiment.Analyze(c.Text)
	e.memo[c.Text] = r
	return r
}

// Polarity is the coarse category of a comment
func (e *Engine) Polarity(c extraction.Comment) sentiment.Polarity {
	return e.Sentiment(c).Polarity()
}

// Tally counts the polarities of a set of comments
func (e *Engine) Tally(comments []extraction.Comment) Counts {
	var c Counts
	for _, cm := range comments {
		c.Add(e.Polarity(cm))
	}
	return c
}

// byComponent partitions comments by component, keeping input order within
// each bucket
func byComponent(comments []extraction.Comment) map[string][]extraction.Comment {
	out := make(map[string][]extraction.Comment)
	for _, c := range comments {
		out[c.Component] = append(out[c.Component], c)
	}
	return out
}

// byEvaluator partitions comments by evaluator identity
func byEvaluator(comments []extraction.Comment) map[string][]extraction.Comment {
	out := make(map[string][]extraction.Comment)
	for _, c := range comments {
		out[c.Evaluator] = append(out[c.Evaluator], c)
	}
	return out
}

// GroupByTier partitions comments by the expertise tier of their evaluator
func GroupByTier(comments []extraction.Comment) map[expertise.Tier][]extraction.Comment {
	out := make(map[expertise.Tier][]extraction.Comment)
	for _, c := range comments {
		tier := c.Expertise.Tier
		if tier == "" {
			tier = expertise.TierUnknown
		}
		out[tier] = append(out[tier], c)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
