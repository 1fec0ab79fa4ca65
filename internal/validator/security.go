package validator

import (
	"sitegrade/internal/projector"
	"sitegrade/internal/snapshot"
)

// Tier groups security headers by importance.
type Tier string

const (
	TierCritical  Tier = "critical"
	TierImportant Tier = "important"
	TierOptional  Tier = "optional"
)

var tierWeights = map[Tier]float64{
	TierCritical:  2.0,
	TierImportant: 1.5,
	TierOptional:  1.0,
}

// Weight returns the score contribution of one header in the tier.
func (t Tier) Weight() float64 {
	return tierWeights[t]
}

// HeaderRule names a header, its tier, and headers accepted in its place.
type HeaderRule struct {
	Name         string
	Tier         Tier
	Alternatives []string
}

var securityHeaders = []HeaderRule{
	{Name: "Content-Security-Policy", Tier: TierCritical, Alternatives: []string{"Content-Security-Policy-Report-Only"}},
	{Name: "Strict-Transport-Security", Tier: TierCritical},
	{Name: "X-Frame-Options", Tier: TierImportant},
	{Name: "X-Content-Type-Options", Tier: TierImportant},
	{Name: "Referrer-Policy", Tier: TierOptional},
	{Name: "Permissions-Policy", Tier: TierOptional, Alternatives: []string{"Feature-Policy"}},
}

// SecurityHeaderRules returns the header table used for scoring.
func SecurityHeaderRules() []HeaderRule {
	out := make([]HeaderRule, len(securityHeaders))
	copy(out, securityHeaders)
	return out
}

// Security score cut-offs on the achieved/max ratio.
const (
	securityGoodRatio = 0.6
	securityFairRatio = 0.4
)

// HeaderResult is the outcome for one header rule.
type HeaderResult struct {
	Name      string  `json:"name"`
	Tier      Tier    `json:"tier"`
	Weight    float64 `json:"weight"`
	Present   bool    `json:"present"`
	MatchedBy string  `json:"matched_by,omitempty"`
}

// SecurityScore is the weighted composite over all header rules.
type SecurityScore struct {
	Achieved float64        `json:"achieved"`
	Max      float64        `json:"max"`
	Ratio    float64        `json:"ratio"`
	Rating   Rating         `json:"rating"`
	Headers  []HeaderResult `json:"headers"`
}

// Missing lists headers for which neither the header nor an alternative was
// present.
func (s SecurityScore) Missing() []string {
	var out []string
	for _, h := range s.Headers {
		if !h.Present {
			out = append(out, h.Name)
		}
	}
	return out
}

// ScoreSecurityHeaders scores a header map (raw or projected). Header names
// are matched case-insensitively and independent of separators.
func ScoreSecurityHeaders(headers snapshot.Value) SecurityScore {
	present := map[string]string{}
	for key, value := range headers.Fields() {
		if headerPresent(value) {
			present[projector.CompactKey(key)] = key
		}
	}

	score := SecurityScore{Headers: make([]HeaderResult, 0, len(securityHeaders))}
	for _, rule := range securityHeaders {
		weight := rule.Tier.Weight()
		score.Max += weight
		result := HeaderResult{Name: rule.Name, Tier: rule.Tier, Weight: weight}
		for _, candidate := range append([]string{rule.Name}, rule.Alternatives...) {
			if _, ok := present[projector.CompactKey(candidate)]; ok {
				result.Present = true
				result.MatchedBy = candidate
				break
			}
		}
		if result.Present {
			score.Achieved += weight
		}
		score.Headers = append(score.Headers, result)
	}
	if score.Max > 0 {
		score.Ratio = score.Achieved / score.Max
	}
	switch {
	case score.Ratio >= securityGoodRatio:
		score.Rating = Good
	case score.Ratio >= securityFairRatio:
		score.Rating = NeedsImprovement
	default:
		score.Rating = Poor
	}
	return score
}

func headerPresent(v snapshot.Value) bool {
	switch v.Kind() {
	case snapshot.KindString:
		s, _ := v.Str()
		return s != ""
	case snapshot.KindBool:
		b, _ := v.Boolean()
		return b
	case snapshot.KindNumber:
		return true
	case snapshot.KindArray, snapshot.KindObject:
		return v.Len() > 0
	default:
		return false
	}
}
