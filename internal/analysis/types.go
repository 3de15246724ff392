package analysis

import (
	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/papers"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
)

type Summary struct {
	Evaluations          int      `json:"evaluations"`
	ExcludedEvaluations  int      `json:"excludedEvaluations"`
	Comments             int      `json:"comments"`
	Evaluators           int      `json:"evaluators"`
	Papers               int      `json:"papers"`
	MultiEvaluatorPapers int      `json:"multiEvaluatorPapers"`
	AnalyzedComments     int      `json:"analyzedComments"`
	Components           []string `json:"components"`
}

type SentimentSummary struct {
	Overall             Counts                  `json:"overall"`
	Labels              map[sentiment.Label]int `json:"labels"`
	ByComponent         map[string]Counts       `json:"byComponent"`
	MeanNormalizedScore float64                 `json:"meanNormalizedScore"`
	MeanConfidence      float64                 `json:"meanConfidence"`
	LexiconMisses       int                     `json:"lexiconMisses"`
}

type Agreement struct {
	AgreedComponents   int                `json:"agreedComponents"`
	ComparedComponents int                `json:"comparedComponents"`
	Rate               float64            `json:"rate"`
	ByComponent        map[string]float64 `json:"byComponent"`
}

// Report is the full result of one analysis pass. Every section is
// computed from the same snapshot and the same sentiment memo.
type Report struct {
	Summary              Summary                `json:"summary"`
	Papers               papers.Counts          `json:"papers"`
	TierDistribution     map[expertise.Tier]int `json:"tierDistribution"`
	Sentiment            SentimentSummary       `json:"sentiment"`
	Intersections        []PaperIntersection    `json:"intersections"`
	Agreement            Agreement              `json:"agreement"`
	Kappa                KappaResult            `json:"kappa"`
	KappaByComponent     map[string]KappaResult `json:"kappaByComponent"`
	ExpertConsensus      ExpertConsensus        `json:"expertConsensus"`
	ExpertisePreferences ExpertisePreferences   `json:"expertisePreferences"`
}
