package analysis

import (
	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/extraction"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
)

const (
	ReasonInsufficientRaters = "insufficient data: fewer than two raters"
	ReasonNoSharedComponents = "insufficient data: no component rated by two or more evaluators"
	ReasonTooFewExperts      = "insufficient data: fewer than three expert comments"
	ReasonTooFewTiers        = "insufficient data: fewer than two expertise tiers with comments"

	minExpertComments = 3
)

type ConsensusType string

const (
	ConsensusUnanimous ConsensusType = "unanimous"
	ConsensusMajority  ConsensusType = "majority"
)

// ConsensusFinding is one component on which qualified evaluators converge
type ConsensusFinding struct {
	Component            string             `json:"component"`
	ConsensusType        ConsensusType      `json:"consensusType"`
	Sentiment            sentiment.Polarity `json:"sentiment"`
	SupportingEvaluators int                `json:"supportingEvaluatorCount"`
	ExpertCount          int                `json:"expertCount"`
	Comments             int                `json:"comments"`
}

// ExpertConsensus summarizes how expert and advanced evaluators agree
type ExpertConsensus struct {
	Sufficient           bool               `json:"sufficient"`
	Reason               string             `json:"reason,omitempty"`
	TotalComments        int                `json:"totalComments"`
	QualifyingComments   int                `json:"qualifyingComments"`
	QualifyingEvaluators int                `json:"qualifyingEvaluators"`
	ComponentsAnalyzed   int                `json:"componentsAnalyzed"`
	Findings             []ConsensusFinding `json:"findings"`
	PositiveConsensus    []string           `json:"positiveConsensus"`
	NegativeConsensus    []string           `json:"negativeConsensus"`
	Disputed             []string           `json:"disputed"`
}

// AnalyzeExpertConsensus looks for agreement among evaluators in qualified
// tiers. comments is the whole comment set the analysis is run on;
// byExpertise is its tier partition and is derived from comments when nil.
func (e *Engine) AnalyzeExpertConsensus(comments []extraction.Comment, byExpertise map[expertise.Tier][]extraction.Comment) ExpertConsensus {
	if byExpertise == nil {
		byExpertise = GroupByTier(comments)
	}

	res := ExpertConsensus{
		TotalComments:     len(comments),
		Findings:          []ConsensusFinding{},
		PositiveConsensus: []string{},
		NegativeConsensus: []string{},
		Disputed:          []string{},
	}

	var qualifying []extraction.Comment
	for _, tier := range expertise.Tiers() {
		if tier.Qualified() {
			qualifying = append(qualifying, byExpertise[tier]...)
		}
	}
	res.QualifyingComments = len(qualifying)
	res.QualifyingEvaluators = len(byEvaluator(qualifying))

	if len(qualifying) < minExpertComments {
		res.Reason = ReasonTooFewExperts
		return res
	}
	res.Sufficient = true

	components := byComponent(qualifying)
	for _, component := range sortedKeys(components) {
		perEval := byEvaluator(components[component])
		if len(perEval) < 2 {
			continue
		}
		res.ComponentsAnalyzed++

		var dominants Counts
		for _, evaluator := range sortedKeys(perEval) {
			dominants.Add(e.Tally(perEval[evaluator]).Dominant())
		}
		top := dominants.Dominant()
		support := dominants.Get(top)
		experts := len(perEval)

		var kind ConsensusType
		switch {
		case support == experts:
			kind = ConsensusUnanimous
		case 2*support > experts:
			kind = ConsensusMajority
		default:
			res.Disputed = append(res.Disputed, component)
			continue
		}

		res.Findings = append(res.Findings, ConsensusFinding{
			Component:            component,
			ConsensusType:        kind,
			Sentiment:            top,
			SupportingEvaluators: support,
			ExpertCount:          experts,
			Comments:             len(components[component]),
		})
		switch top {
		case sentiment.Positive:
			res.PositiveConsensus = append(res.PositiveConsensus, component)
		case sentiment.Negative:
			res.NegativeConsensus = append(res.NegativeConsensus, component)
		}
	}

	return res
}
