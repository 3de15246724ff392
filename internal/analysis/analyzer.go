package analysis

import (
	"log/slog"

	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/extraction"
	"github.com/ZanzyTHEbar/eval-consensus/internal/papers"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

// Analyzer orchestrates the full analysis pipeline
type Analyzer struct {
	extractor *extraction.Extractor
	resolver  *papers.Resolver
}

// NewAnalyzer creates an analyzer over the extractor's schema
func NewAnalyzer(extractor *extraction.Extractor) *Analyzer {
	return &Analyzer{
		extractor: extractor,
		resolver:  papers.NewResolver(extractor),
	}
}

func (a *Analyzer) Extractor() *extraction.Extractor {
	return a.extractor
}

// Resolve extracts comments and groups them by paper
func (a *Analyzer) Resolve(evaluations []types.Evaluation) (papers.Result, []extraction.Comment) {
	comments := a.extractor.ExtractAll(evaluations)
	return a.resolver.FindMultiEvaluatorPapers(comments, evaluations), comments
}

// Analyze runs extraction, paper resolution and every reliability analysis
// over one immutable set of evaluations
func (a *Analyzer) Analyze(evaluations []types.Evaluation) *Report {
	resolved, comments := a.Resolve(evaluations)
	engine := NewEngine()

	// the reliability analyses only see comments of multi-evaluator papers
	var analyzed []extraction.Comment
	for _, g := range resolved.MultiEvaluatorPapers {
		analyzed = append(analyzed, g.Comments...)
	}
	byTier := GroupByTier(analyzed)

	intersections := engine.CalculateIntersections(resolved.MultiEvaluatorPapers)
	units := UnitsFromIntersections(intersections)
	agreed, compared, rate := OverallAgreement(intersections)

	report := &Report{
		Summary:          a.summary(resolved, comments, len(analyzed)),
		Papers:           resolved.Counts,
		TierDistribution: tierDistribution(evaluations, a.extractor),
		Sentiment:        sentimentSummary(engine, comments),
		Intersections:    intersections,
		Agreement: Agreement{
			AgreedComponents:   agreed,
			ComparedComponents: compared,
			Rate:               rate,
			ByComponent:        ComponentAgreement(intersections),
		},
		Kappa:                CalculateFleissKappa(units),
		KappaByComponent:     KappaByComponent(units),
		ExpertConsensus:      engine.AnalyzeExpertConsensus(analyzed, byTier),
		ExpertisePreferences: engine.AnalyzeExpertisePreferences(byTier),
	}

	slog.Debug("analysis complete",
		"evaluations", len(evaluations),
		"comments", len(comments),
		"multi_evaluator_papers", len(resolved.MultiEvaluatorPapers),
		"units", len(units),
		"kappa_sufficient", report.Kappa.Sufficient,
	)
	return report
}

func (a *Analyzer) summary(resolved papers.Result, comments []extraction.Comment, analyzed int) Summary {
	evaluators := make(map[string]bool)
	components := make(map[string]bool)
	for _, c := range comments {
		evaluators[c.Evaluator] = true
		components[c.Component] = true
	}
	for _, g := range resolved.Papers {
		for _, id := range g.Evaluators {
			evaluators[id] = true
		}
	}

	// declared order first, then anything seen that the schema does not name
	ordered := make([]string, 0, len(components))
	for _, name := range a.extractor.Schema().ComponentNames() {
		if components[name] {
			ordered = append(ordered, name)
			delete(components, name)
		}
	}
	ordered = append(ordered, sortedKeys(components)...)

	return Summary{
		Evaluations:          resolved.Counts.TotalEvaluations,
		ExcludedEvaluations:  resolved.Counts.ExcludedEvaluations,
		Comments:             len(comments),
		Evaluators:           len(evaluators),
		Papers:               resolved.Counts.Papers,
		MultiEvaluatorPapers: resolved.Counts.MultiEvaluatorPapers,
		AnalyzedComments:     analyzed,
		Components:           ordered,
	}
}

func sentimentSummary(engine *Engine, comments []extraction.Comment) SentimentSummary {
	s := SentimentSummary{
		Labels:      make(map[sentiment.Label]int),
		ByComponent: make(map[string]Counts),
	}
	var scores, confidences []float64
	for _, c := range comments {
		r := engine.Sentiment(c)
		p := r.Polarity()
		s.Overall.Add(p)
		s.Labels[r.Category]++

		bc := s.ByComponent[c.Component]
		bc.Add(p)
		s.ByComponent[c.Component] = bc

		if r.Matches == 0 {
			s.LexiconMisses++
		}
		scores = append(scores, r.NormalizedScore)
		confidences = append(confidences, r.Confidence)
	}
	s.MeanNormalizedScore = round(mean(scores), 4)
	s.MeanConfidence = round(mean(confidences), 4)
	return s
}

// tierDistribution counts distinct evaluators per tier
func tierDistribution(evaluations []types.Evaluation, extractor *extraction.Extractor) map[expertise.Tier]int {
	tierOf := make(map[string]expertise.Tier)
	for _, ev := range evaluations {
		h := extractor.Describe(ev)
		if _, ok := tierOf[h.Evaluator]; !ok {
			tierOf[h.Evaluator] = h.Expertise.Tier
		}
	}
	out := make(map[expertise.Tier]int)
	for _, tier := range tierOf {
		out[tier]++
	}
	return out
}
