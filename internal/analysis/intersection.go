package analysis

import (
	"math"

	"github.com/ZanzyTHEbar/eval-consensus/internal/papers"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
)

// ComponentIntersection compares the evaluators of one paper on one component
type ComponentIntersection struct {
	Component  string                        `json:"component"`
	Evaluators int                           `json:"evaluators"`
	Dominants  map[string]sentiment.Polarity `json:"dominants"`
	Agreement  bool                          `json:"agreement"`
	Consensus  sentiment.Polarity            `json:"consensus,omitempty"`
	Counts     Counts                        `json:"counts"`

	// evaluators with at least one comment of the polarity, regardless of
	// their dominant category
	PositiveEvaluators []string `json:"positiveEvaluators"`
	NegativeEvaluators []string `json:"negativeEvaluators"`
	PositiveCount      int      `json:"positiveCount"`
	NegativeCount      int      `json:"negativeCount"`
}

// PaperIntersection is the component-level agreement summary of one paper
type PaperIntersection struct {
	PaperKey   string `json:"paperKey"`
	Title      string `json:"title"`
	Evaluators int    `json:"evaluators"`
	Applicable bool   `json:"applicable"`
	Reason     string `json:"reason,omitempty"`

	Components                       []ComponentIntersection `json:"components"`
	ComponentsWithMultiEvaluatorData int                     `json:"componentsWithMultiEvaluatorData"`
	AgreedComponents                 int                     `json:"agreedComponents"`
	AgreementRate                    int                     `json:"agreementRate"`
}

// CalculatePaperIntersection compares each evaluator's dominant category per
// component. Components with fewer than two contributing evaluators are
// left out.
func (e *Engine) CalculatePaperIntersection(g *papers.Group) PaperIntersection {
	res := PaperIntersection{
		PaperKey:   g.Key,
		Title:      g.Title,
		Evaluators: g.EvaluatorCount(),
		Components: []ComponentIntersection{},
	}
	if !g.IsMultiEvaluator() {
		res.Reason = ReasonInsufficientRaters
		return res
	}

	// component -> evaluator -> tally
	tallies := make(map[string]map[string]*Counts)
	for _, evaluator := range sortedKeys(g.ByEvaluator) {
		for _, c := range g.ByEvaluator[evaluator] {
			perEval, ok := tallies[c.Component]
			if !ok {
				perEval = make(map[string]*Counts)
				tallies[c.Component] = perEval
			}
			t, ok := perEval[evaluator]
			if !ok {
				t = &Counts{}
				perEval[evaluator] = t
			}
			t.Add(e.Polarity(c))
		}
	}

	for _, component := range sortedKeys(tallies) {
		perEval := tallies[component]
		if len(perEval) < 2 {
			continue
		}

		ci := ComponentIntersection{
			Component:          component,
			Evaluators:         len(perEval),
			Dominants:          make(map[string]sentiment.Polarity, len(perEval)),
			PositiveEvaluators: []string{},
			NegativeEvaluators: []string{},
		}
		agreed := true
		var first sentiment.Polarity
		for i, evaluator := range sortedKeys(perEval) {
			t := perEval[evaluator]
			d := t.Dominant()
			ci.Dominants[evaluator] = d
			ci.Counts.Add(d)
			if i == 0 {
				first = d
			} else if d != first {
				agreed = false
			}
			if t.Positive > 0 {
				ci.PositiveEvaluators = append(ci.PositiveEvaluators, evaluator)
			}
			if t.Negative > 0 {
				ci.NegativeEvaluators = append(ci.NegativeEvaluators, evaluator)
			}
		}
		ci.Agreement = agreed
		if agreed {
			ci.Consensus = first
		}
		ci.PositiveCount = len(ci.PositiveEvaluators)
		ci.NegativeCount = len(ci.NegativeEvaluators)

		res.Components = append(res.Components, ci)
		res.ComponentsWithMultiEvaluatorData++
		if agreed {
			res.AgreedComponents++
		}
	}

	if res.ComponentsWithMultiEvaluatorData == 0 {
		res.Reason = ReasonNoSharedComponents
		return res
	}
	res.Applicable = true
	res.AgreementRate = int(math.Round(100 * ratio(res.AgreedComponents, res.ComponentsWithMultiEvaluatorData)))
	return res
}

// CalculateIntersections runs CalculatePaperIntersection over every group,
// in group order
func (e *Engine) CalculateIntersections(groups []*papers.Group) []PaperIntersection {
	out := make([]PaperIntersection, 0, len(groups))
	for _, g := range groups {
		out = append(out, e.CalculatePaperIntersection(g))
	}
	return out
}

// OverallAgreement pools agreed and compared components across papers
func OverallAgreement(intersections []PaperIntersection) (agreed, compared int, rate float64) {
	for _, pi := range intersections {
		agreed += pi.AgreedComponents
		compared += pi.ComponentsWithMultiEvaluatorData
	}
	return agreed, compared, percent(agreed, compared)
}

// ComponentAgreement pools agreement per component name across papers
func ComponentAgreement(intersections []PaperIntersection) map[string]float64 {
	agreed := make(map[string]int)
	compared := make(map[string]int)
	for _, pi := range intersections {
		for _, ci := range pi.Components {
			compared[ci.Component]++
			if ci.Agreement {
				agreed[ci.Component]++
			}
		}
	}
	out := make(map[string]float64, len(compared))
	for component, n := range compared {
		out[component] = percent(agreed[component], n)
	}
	return out
}
