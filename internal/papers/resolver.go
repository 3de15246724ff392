package papers

import (
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/eval-consensus/internal/extraction"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

// NormalizeTitle is the only key used to decide that two records refer to
// the same paper: trimmed, case-folded, internal whitespace collapsed.
// Titles differing in anything else (punctuation, subtitles) stay apart.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Group is every evaluation and comment sharing one normalized title
type Group struct {
	Key         string                          `json:"key"`
	Title       string                          `json:"title"`
	DOI         string                          `json:"doi,omitempty"`
	Evaluators  []string                        `json:"evaluators"`
	Tokens      []string                        `json:"tokens"`
	ByEvaluator map[string][]extraction.Comment `json:"byEvaluator"`
	Comments    []extraction.Comment            `json:"-"`

	evaluatorSet map[string]bool
}

// EvaluatorCount is the number of distinct evaluator identities
func (g *Group) EvaluatorCount() int {
	return len(g.Evaluators)
}

// IsMultiEvaluator reports whether at least two evaluators rated the paper
func (g *Group) IsMultiEvaluator() bool {
	return g.EvaluatorCount() >= 2
}

func (g *Group) addEvaluator(identity string) {
	if g.evaluatorSet[identity] {
		return
	}
	g.evaluatorSet[identity] = true
	g.Evaluators = append(g.Evaluators, identity)
	if _, ok := g.ByEvaluator[identity]; !ok {
		g.ByEvaluator[identity] = []extraction.Comment{}
	}
}

// Counts summarizes one resolver pass
type Counts struct {
	TotalEvaluations         int `json:"totalEvaluations"`
	ExcludedEvaluations      int `json:"excludedEvaluations"`
	Papers                   int `json:"papers"`
	MultiEvaluatorPapers     int `json:"multiEvaluatorPapers"`
	SingleEvaluatorPapers    int `json:"singleEvaluatorPapers"`
	TotalComments            int `json:"totalComments"`
	AttachedComments         int `json:"attachedComments"`
	UnattachedComments       int `json:"unattachedComments"`
	MultiEvaluatorComments   int `json:"multiEvaluatorComments"`
	EvaluationsInMultiGroups int `json:"evaluationsInMultiGroups"`
}

// Result is the outcome of grouping a corpus by paper
type Result struct {
	MultiEvaluatorPapers []*Group `json:"multiEvaluatorPapers"`
	Papers               []*Group `json:"papers"`
	Counts               Counts   `json:"counts"`
}

// Resolver groups evaluations by paper identity
type Resolver struct {
	extractor *extraction.Extractor
}

// NewResolver uses the extractor's schema to describe evaluations
func NewResolver(extractor *extraction.Extractor) *Resolver {
	return &Resolver{extractor: extractor}
}

// FindMultiEvaluatorPapers rebuilds every group from scratch. Evaluations
// without a resolvable title are excluded and counted. Comments attach by
// normalizing the title they carry themselves.
func (r *Resolver) FindMultiEvaluatorPapers(comments []extraction.Comment, evaluations []types.Evaluation) Result {
	groups := make(map[string]*Group)
	order := make([]string, 0)
	res := Result{Counts: Counts{TotalEvaluations: len(evaluations), TotalComments: len(comments)}}

	for _, ev := range evaluations {
		h := r.extractor.Describe(ev)
		key := NormalizeTitle(h.PaperTitle)
		if key == "" {
			res.Counts.ExcludedEvaluations++
			continue
		}

		g, ok := groups[key]
		if !ok {
			g = &Group{
				Key:          key,
				Title:        h.PaperTitle,
				ByEvaluator:  make(map[string][]extraction.Comment),
				evaluatorSet: make(map[string]bool),
			}
			groups[key] = g
			order = append(order, key)
		}
		if g.DOI == "" {
			g.DOI = h.PaperDOI
		}
		g.Tokens = append(g.Tokens, h.Token)
		g.addEvaluator(h.Evaluator)
	}

	for _, c := range comments {
		g, ok := groups[NormalizeTitle(c.PaperTitle)]
		if !ok {
			res.Counts.UnattachedComments++
			continue
		}
		res.Counts.AttachedComments++
		g.Comments = append(g.Comments, c)
		g.ByEvaluator[c.Evaluator] = append(g.ByEvaluator[c.Evaluator], c)
	}

	res.Papers = make([]*Group, 0, len(order))
	for _, key := range order {
		res.Papers = append(res.Papers, groups[key])
	}
	sort.SliceStable(res.Papers, func(i, j int) bool {
		if res.Papers[i].EvaluatorCount() != res.Papers[j].EvaluatorCount() {
			return res.Papers[i].EvaluatorCount() > res.Papers[j].EvaluatorCount()
		}
		return res.Papers[i].Key < res.Papers[j].Key
	})

	res.MultiEvaluatorPapers = make([]*Group, 0)
	for _, g := range res.Papers {
		if g.IsMultiEvaluator() {
			res.MultiEvaluatorPapers = append(res.MultiEvaluatorPapers, g)
			res.Counts.MultiEvaluatorComments += len(g.Comments)
			res.Counts.EvaluationsInMultiGroups += len(g.Tokens)
		}
	}

	res.Counts.Papers = len(res.Papers)
	res.Counts.MultiEvaluatorPapers = len(res.MultiEvaluatorPapers)
	res.Counts.SingleEvaluatorPapers = res.Counts.Papers - res.Counts.MultiEvaluatorPapers
	return res
}

// Lookup returns the group for a raw title, if any
func (r Result) Lookup(title string) (*Group, bool) {
	key := NormalizeTitle(title)
	for _, g := range r.Papers {
		if g.Key == key {
			return g, true
		}
	}
	return nil, false
}
