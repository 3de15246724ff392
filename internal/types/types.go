package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Evaluation is one evaluator's record for one paper. Data is opaque and is
// only ever read through declared paths.
type Evaluation struct {
	Token string `json:"token,omitempty"`
	Data  Value  `json:"data"`
}

// NewEvaluation wraps a decoded record
func NewEvaluation(token string, data Value) Evaluation {
	return Evaluation{Token: token, Data: data}
}

// DecodeEvaluations accepts either a JSON array of records or an object with
// an "evaluations" array. Tokens are left empty; extraction resolves them.
func DecodeEvaluations(data []byte) ([]Evaluation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty evaluation payload")
	}

	var root Value
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return nil, fmt.Errorf("failed to decode evaluations: %w", err)
	}

	list := root
	if root.Kind() == KindRecord {
		inner, ok := root.Lookup("evaluations")
		if !ok {
			return nil, fmt.Errorf("evaluation object has no \"evaluations\" field")
		}
		list = inner
	}
	if list.Kind() != KindList {
		return nil, fmt.Errorf("evaluations must be a list, got %s", list.Kind())
	}

	items := list.Items()
	evals := make([]Evaluation, 0, len(items))
	for i, item := range items {
		if item.Kind() != KindRecord {
			return nil, fmt.Errorf("evaluation %d must be an object, got %s", i, item.Kind())
		}
		evals = append(evals, Evaluation{Data: item})
	}
	return evals, nil
}

// AnalyzeRequest is the body of the analyze endpoint. Evaluations are
// optional; without them the configured corpus source is analyzed.
type AnalyzeRequest struct {
	Evaluations []Value `json:"evaluations"`
}

// SentimentRequest is the body of the sentiment endpoint
type SentimentRequest struct {
	Text string `json:"text"`
}

// ExpertiseRequest is the body of the expertise endpoint
type ExpertiseRequest struct {
	Role                 string   `json:"role"`
	DomainExpertise      string   `json:"domainExpertise"`
	EvaluationExperience string   `json:"evaluationExperience"`
	Weight               *float64 `json:"weight,omitempty"`
}
