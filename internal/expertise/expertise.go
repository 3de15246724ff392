package expertise

import (
	"math"
	"strings"
)

// Tier is the coarse expertise bucket of an evaluator
type Tier string

const (
	TierExpert       Tier = "expert"
	TierAdvanced     Tier = "advanced"
	TierIntermediate Tier = "intermediate"
	TierBasic        Tier = "basic"
	TierUnknown      Tier = "unknown"
)

// Tiers lists every tier from most to least expert
func Tiers() []Tier {
	return []Tier{TierExpert, TierAdvanced, TierIntermediate, TierBasic, TierUnknown}
}

// ParseTier resolves a tier name case-insensitively
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers() {
		if t == known {
			return t, true
		}
	}
	return TierUnknown, false
}

// Qualified reports whether the tier counts toward expert consensus
func (t Tier) Qualified() bool {
	return t == TierExpert || t == TierAdvanced
}

const (
	maxScore          = 5.0
	unknownScore      = 1.0
	expertThreshold   = 4.0
	advancedThreshold = 3.0
	intermediateMin   = 2.0

	defaultRole   = "other"
	defaultDomain = "intermediate"
)

// roleWeights are base weights keyed by lower-cased role
var roleWeights = map[string]float64{
	"professor":               5.0,
	"associate professor":     4.5,
	"assistant professor":     4.0,
	"senior researcher":       4.0,
	"postdoc":                 3.5,
	"postdoctoral researcher": 3.5,
	"researcher":              3.5,
	"industry professional":   3.0,
	"phd student":             3.0,
	"research assistant":      2.5,
	"librarian":               2.5,
	"master student":          2.0,
	"bachelor student":        1.5,
	"student":                 1.5,
	"other":                   2.0,
}

// domainMultipliers scale the role weight by self-reported domain expertise
var domainMultipliers = map[string]float64{
	"expert":       1.2,
	"advanced":     1.1,
	"intermediate": 1.0,
	"basic":        0.9,
	"beginner":     0.8,
	"novice":       0.8,
}

// Profile is the self-reported background of an evaluator. Weight, when
// present, is an externally computed composite that overrides the tables.
type Profile struct {
	Role                 string   `json:"role"`
	DomainExpertise      string   `json:"domainExpertise"`
	EvaluationExperience string   `json:"evaluationExperience"`
	Weight               *float64 `json:"weight,omitempty"`
}

// Empty reports whether the profile carries no usable information
func (p *Profile) Empty() bool {
	if p == nil {
		return true
	}
	hasWeight := p.Weight != nil && !math.IsNaN(*p.Weight)
	return !hasWeight &&
		strings.TrimSpace(p.Role) == "" &&
		strings.TrimSpace(p.DomainExpertise) == "" &&
		strings.TrimSpace(p.EvaluationExperience) == ""
}

// Class is the derived expertise of an evaluator
type Class struct {
	Tier           Tier    `json:"tier"`
	CompositeScore float64 `json:"compositeScore"`
}

// Classify derives the expertise class of a profile. A missing profile is
// "unknown" with weight 1.0.
func Classify(p *Profile) Class {
	if p.Empty() {
		return Class{Tier: TierUnknown, CompositeScore: unknownScore}
	}

	var score float64
	if p.Weight != nil && !math.IsNaN(*p.Weight) {
		score = clamp(*p.Weight, 0, maxScore)
	} else {
		score = math.Min(maxScore, RoleWeight(p.Role)*DomainMultiplier(p.DomainExpertise))
	}

	return Class{Tier: TierFor(score), CompositeScore: score}
}

// TierFor applies the fixed tier thresholds to a composite score
func TierFor(score float64) Tier {
	switch {
	case score >= expertThreshold:
		return TierExpert
	case score >= advancedThreshold:
		return TierAdvanced
	case score >= intermediateMin:
		return TierIntermediate
	default:
		return TierBasic
	}
}

// RoleWeight looks up the base weight of a role, defaulting to "Other"
func RoleWeight(role string) float64 {
	if w, ok := roleWeights[normalize(role)]; ok {
		return w
	}
	return roleWeights[defaultRole]
}

// DomainMultiplier looks up the domain multiplier, defaulting to "Intermediate"
func DomainMultiplier(domain string) float64 {
	if m, ok := domainMultipliers[normalize(domain)]; ok {
		return m
	}
	return domainMultipliers[defaultDomain]
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
