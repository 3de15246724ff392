package analysis

import (
	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/extraction"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
)

const leanThreshold = 0.5

// Lean calls a tally positive or negative only when that side holds more
// than half of it
func Lean(c Counts) sentiment.Polarity {
	total := c.Total()
	switch {
	case total == 0:
		return sentiment.Neutral
	case ratio(c.Positive, total) > leanThreshold:
		return sentiment.Positive
	case ratio(c.Negative, total) > leanThreshold:
		return sentiment.Negative
	default:
		return sentiment.Neutral
	}
}

// TierPreference is the pooled feedback profile of one expertise tier
type TierPreference struct {
	Tier                expertise.Tier                `json:"tier"`
	Comments            int                           `json:"comments"`
	Evaluators          int                           `json:"evaluators"`
	Counts              Counts                        `json:"counts"`
	PositiveRatio       float64                       `json:"positiveRatio"`
	NeutralRatio        float64                       `json:"neutralRatio"`
	NegativeRatio       float64                       `json:"negativeRatio"`
	MeanNormalizedScore float64                       `json:"meanNormalizedScore"`
	MeanRating          *float64                      `json:"meanRating,omitempty"`
	MedianRating        *float64                      `json:"medianRating,omitempty"`
	Lean                sentiment.Polarity            `json:"lean"`
	ComponentCounts     map[string]Counts             `json:"componentCounts"`
	ComponentLeans      map[string]sentiment.Polarity `json:"componentLeans"`
}

// Zone is a component compared across tiers
type Zone struct {
	Component string                                `json:"component"`
	Leans     map[expertise.Tier]sentiment.Polarity `json:"leans"`
	Lean      sentiment.Polarity                    `json:"lean,omitempty"`
}

// ExpertisePreferences compares how tiers lean per component
type ExpertisePreferences struct {
	Sufficient     bool             `json:"sufficient"`
	Reason         string           `json:"reason,omitempty"`
	Tiers          []TierPreference `json:"tiers"`
	AgreementZone  []Zone           `json:"agreementZone"`
	DivergenceZone []Zone           `json:"divergenceZone"`
	AgreementRate  float64          `json:"agreementRate"`
}

// AnalyzeExpertisePreferences pools comments per tier and checks, per
// component, whether every tier with data leans the same way
func (e *Engine) AnalyzeExpertisePreferences(byExpertise map[expertise.Tier][]extraction.Comment) ExpertisePreferences {
	res := ExpertisePreferences{
		Tiers:          []TierPreference{},
		AgreementZone:  []Zone{},
		DivergenceZone: []Zone{},
	}

	for _, tier := range expertise.Tiers() {
		comments := byExpertise[tier]
		if len(comments) == 0 {
			continue
		}
		res.Tiers = append(res.Tiers, e.tierPreference(tier, comments))
	}

	if len(res.Tiers) < 2 {
		res.Reason = ReasonTooFewTiers
		return res
	}
	res.Sufficient = true

	components := make(map[string]bool)
	for _, tp := range res.Tiers {
		for component := range tp.ComponentLeans {
			components[component] = true
		}
	}

	for _, component := range sortedKeys(components) {
		z := Zone{Component: component, Leans: make(map[expertise.Tier]sentiment.Polarity)}
		agreed := true
		var first sentiment.Polarity
		for _, tp := range res.Tiers {
			lean, ok := tp.ComponentLeans[component]
			if !ok {
				continue
			}
			if len(z.Leans) == 0 {
				first = lean
			} else if lean != first {
				agreed = false
			}
			z.Leans[tp.Tier] = lean
		}
		if len(z.Leans) < 2 {
			continue
		}
		if agreed {
			z.Lean = first
			res.AgreementZone = append(res.AgreementZone, z)
		} else {
			res.DivergenceZone = append(res.DivergenceZone, z)
		}
	}

	res.AgreementRate = percent(len(res.AgreementZone), len(res.AgreementZone)+len(res.DivergenceZone))
	return res
}

func (e *Engine) tierPreference(tier expertise.Tier, comments []extraction.Comment) TierPreference {
	tp := TierPreference{
		Tier:            tier,
		Comments:        len(comments),
		Evaluators:      len(byEvaluator(comments)),
		ComponentCounts: make(map[string]Counts),
		ComponentLeans:  make(map[string]sentiment.Polarity),
	}

	scores := make([]float64, 0, len(comments))
	var ratings []float64
	for _, c := range comments {
		r := e.Sentiment(c)
		tp.Counts.Add(r.Polarity())
		scores = append(scores, r.NormalizedScore)
		if c.Rating != nil {
			ratings = append(ratings, *c.Rating)
		}
	}

	for component, cs := range byComponent(comments) {
		counts := e.Tally(cs)
		tp.ComponentCounts[component] = counts
		tp.ComponentLeans[component] = Lean(counts)
	}

	tp.PositiveRatio = round(ratio(tp.Counts.Positive, tp.Comments), 4)
	tp.NeutralRatio = round(ratio(tp.Counts.Neutral, tp.Comments), 4)
	tp.NegativeRatio = round(ratio(tp.Counts.Negative, tp.Comments), 4)
	tp.MeanNormalizedScore = round(clip(mean(scores), 0, 1), 4)
	tp.Lean = Lean(tp.Counts)
	if len(ratings) > 0 {
		m, md := round(mean(ratings), 2), round(median(ratings), 2)
		tp.MeanRating, tp.MedianRating = &m, &md
	}
	return tp
}
