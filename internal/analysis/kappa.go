package analysis

import (
	"github.com/ZanzyTHEbar/eval-consensus/internal/papers"
)

// AnalysisUnit is one (paper, component) pair rated by at least two
// evaluators. Counts holds the raters' dominant categories.
type AnalysisUnit struct {
	PaperKey  string `json:"paperKey"`
	Component string `json:"component"`
	Raters    int    `json:"raters"`
	Counts    Counts `json:"counts"`
}

// Proportions are the overall category shares p_j
type Proportions struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// KappaResult is a Fleiss' Kappa computation. When Sufficient is false only
// Reason and Interpretation are meaningful.
type KappaResult struct {
	Sufficient        bool        `json:"sufficient"`
	Reason            string      `json:"reason,omitempty"`
	Kappa             float64     `json:"kappa"`
	ObservedAgreement float64     `json:"observedAgreement"`
	ExpectedAgreement float64     `json:"expectedAgreement"`
	Interpretation    string      `json:"interpretation"`
	Units             int         `json:"units"`
	Ratings           int         `json:"ratings"`
	Proportions       Proportions `json:"proportions"`
}

const (
	InterpretationInsufficient  = "insufficient data"
	InterpretationPoor          = "poor"
	InterpretationSlight        = "slight"
	InterpretationFair          = "fair"
	InterpretationModerate      = "moderate"
	InterpretationSubstantial   = "substantial"
	InterpretationAlmostPerfect = "almost perfect"
)

// Interpret maps kappa onto the Landis and Koch bands
func Interpret(kappa float64) string {
	switch {
	case kappa < 0:
		return InterpretationPoor
	case kappa < 0.20:
		return InterpretationSlight
	case kappa < 0.40:
		return InterpretationFair
	case kappa < 0.60:
		return InterpretationModerate
	case kappa < 0.80:
		return InterpretationSubstantial
	default:
		return InterpretationAlmostPerfect
	}
}

// BuildUnits turns every multi-evaluator component of every group into an
// analysis unit, using the same per-evaluator dominants as the intersection
func (e *Engine) BuildUnits(groups []*papers.Group) []AnalysisUnit {
	return UnitsFromIntersections(e.CalculateIntersections(groups))
}

// UnitsFromIntersections converts computed intersections into units
func UnitsFromIntersections(intersections []PaperIntersection) []AnalysisUnit {
	units := make([]AnalysisUnit, 0)
	for _, pi := range intersections {
		for _, ci := range pi.Components {
			units = append(units, AnalysisUnit{
				PaperKey:  pi.PaperKey,
				Component: ci.Component,
				Raters:    ci.Evaluators,
				Counts:    ci.Counts,
			})
		}
	}
	return units
}

// CalculateFleissKappa computes Fleiss' Kappa over three fixed categories,
// allowing a different number of raters per unit. Units with fewer than two
// ratings are skipped; if none remain the result is not sufficient.
func CalculateFleissKappa(units []AnalysisUnit) KappaResult {
	var (
		sumP    float64
		n       int
		ratings int
		totals  Counts
	)

	for _, u := range units {
		k := u.Counts.Total()
		if k < 2 {
			continue
		}
		agree := 0
		for _, nij := range []int{u.Counts.Positive, u.Counts.Neutral, u.Counts.Negative} {
			agree += nij * (nij - 1)
		}
		sumP += float64(agree) / float64(k*(k-1))
		n++
		ratings += k
		totals.Merge(u.Counts)
	}

	if n == 0 {
		return KappaResult{
			Reason:         ReasonInsufficientRaters,
			Interpretation: InterpretationInsufficient,
		}
	}

	pBar := sumP / float64(n)
	props := Proportions{
		Positive: ratio(totals.Positive, ratings),
		Neutral:  ratio(totals.Neutral, ratings),
		Negative: ratio(totals.Negative, ratings),
	}
	pe := props.Positive*props.Positive + props.Neutral*props.Neutral + props.Negative*props.Negative

	kappa := 1.0
	if pe < 1 {
		kappa = (pBar - pe) / (1 - pe)
	}

	return KappaResult{
		Sufficient:        true,
		Kappa:             kappa,
		ObservedAgreement: round(100*pBar, 1),
		ExpectedAgreement: round(100*pe, 1),
		Interpretation:    Interpret(kappa),
		Units:             n,
		Ratings:           ratings,
		Proportions: Proportions{
			Positive: round(props.Positive, 4),
			Neutral:  round(props.Neutral, 4),
			Negative: round(props.Negative, 4),
		},
	}
}

// KappaByComponent computes kappa separately over the units of each component
func KappaByComponent(units []AnalysisUnit) map[string]KappaResult {
	grouped := make(map[string][]AnalysisUnit)
	for _, u := range units {
		grouped[u.Component] = append(grouped[u.Component], u)
	}
	out := make(map[string]KappaResult, len(grouped))
	for component, us := range grouped {
		out[component] = CalculateFleissKappa(us)
	}
	return out
}
