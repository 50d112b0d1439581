// Package advisory computes a deterministic, explainable risk advisory for
// a check item. It is explicitly NOT a learned model and never gates the
// decision workflow: IsAdvisory and RequiresHumanReview are structurally
// incapable of being anything but true (see Result's unexported fields and
// Score, the only constructor).
package advisory

import (
	"encoding/json"
	"time"
)

const (
	ModelID      = "check-risk-analyzer"
	ModelVersion = "1.0.0"
)

type Recommendation string

const (
	RecLikelyLegitimate Recommendation = "likely_legitimate"
	RecNeedsReview      Recommendation = "needs_review"
	RecHighRisk         Recommendation = "high_risk"
	RecAnomalyDetected  Recommendation = "anomaly_detected"
	RecInsufficientData Recommendation = "insufficient_data"
)

// RiskFactor is one scored contributor to the advisory risk score.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	Value       any     `json:"value,omitempty"`
}

// Result is the advisory output. isAdvisory and requiresHumanReview are
// unexported and fixed at construction so nothing downstream — not a bug,
// not a missing field in a literal — can ever produce a Result that claims
// to be authoritative.
type Result struct {
	ModelID      string         `json:"model_id"`
	ModelVersion string         `json:"model_version"`
	AnalyzedAt   time.Time      `json:"analyzed_at"`

	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	RiskScore      float64        `json:"risk_score"`

	RiskFactors []RiskFactor `json:"risk_factors"`
	Flags       []string     `json:"flags"`
	Explanation string       `json:"explanation"`

	ConfidenceByCategory map[string]float64 `json:"confidence_by_category,omitempty"`

	isAdvisory          bool
	requiresHumanReview bool
}

// IsAdvisory is always true; there is no code path that can set it false.
func (r Result) IsAdvisory() bool { return true }

// RequiresHumanReview is always true; there is no code path that can set
// it false.
func (r Result) RequiresHumanReview() bool { return true }

// MarshalJSON serializes Result with is_advisory and requires_human_review
// hard-coded to true regardless of the unexported field values, so a
// caller cannot construct a Result via reflection/unsafe and smuggle a
// false value into storage either.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		IsAdvisory          bool `json:"is_advisory"`
		RequiresHumanReview bool `json:"requires_human_review"`
	}{alias: alias(r), IsAdvisory: true, RequiresHumanReview: true})
}

// Input is the account-context snapshot the scorer reads. All fields
// optional except Amount: an absent field contributes no risk rather than
// erroring.
type Input struct {
	CheckItemID        string
	Amount              float64
	AccountTenureDays   *int
	AvgCheckAmount30d   *float64
	AvgCheckAmount90d   *float64
	ReturnedItemCount90d *int
	ExceptionCount90d   *int
	CurrentBalance      *float64
	UpstreamFlags       []string
}

// Score computes the advisory result for in. It is a pure function of its
// input: same Input, same Result, always — there is no hidden model state
// and no call to an external inference service.
func Score(in Input, now time.Time) Result {
	var factors []RiskFactor
	var flags []string
	riskScore := 0.0

	if in.AvgCheckAmount30d != nil && *in.AvgCheckAmount30d > 0 {
		ratio := in.Amount / *in.AvgCheckAmount30d
		if ratio > 3.0 {
			riskScore += 0.25
			factors = append(factors, RiskFactor{
				Factor:      "amount_anomaly",
				Weight:      0.25,
				Description: formatRatioDesc(ratio),
				Value:       ratio,
			})
			flags = append(flags, "Amount significantly above average")
		}
	}

	if in.AccountTenureDays != nil && *in.AccountTenureDays < 90 {
		tenureRisk := 0.075
		if *in.AccountTenureDays < 30 {
			tenureRisk = 0.15
		}
		riskScore += tenureRisk
		factors = append(factors, RiskFactor{
			Factor:      "new_account",
			Weight:      tenureRisk,
			Description: formatTenureDesc(*in.AccountTenureDays),
			Value:       *in.AccountTenureDays,
		})
		flags = append(flags, formatTenureFlag(*in.AccountTenureDays))
	}

	if in.ReturnedItemCount90d != nil && *in.ReturnedItemCount90d > 0 {
		returnRisk := minF(0.30, float64(*in.ReturnedItemCount90d)*0.10)
		riskScore += returnRisk
		factors = append(factors, RiskFactor{
			Factor:      "return_history",
			Weight:      returnRisk,
			Description: formatReturnDesc(*in.ReturnedItemCount90d),
			Value:       *in.ReturnedItemCount90d,
		})
		flags = append(flags, formatReturnFlag(*in.ReturnedItemCount90d))
	}

	if in.CurrentBalance != nil && in.Amount > *in.CurrentBalance {
		coverageRisk := 0.20
		riskScore += coverageRisk
		factors = append(factors, RiskFactor{
			Factor:      "insufficient_balance",
			Weight:      coverageRisk,
			Description: "Check amount exceeds current balance",
			Value:       *in.CurrentBalance,
		})
		flags = append(flags, "Amount exceeds current balance")
	}

	if len(in.UpstreamFlags) > 0 {
		upstreamRisk := minF(0.20, float64(len(in.UpstreamFlags))*0.05)
		riskScore += upstreamRisk
		factors = append(factors, RiskFactor{
			Factor:      "upstream_flags",
			Weight:      upstreamRisk,
			Description: formatUpstreamDesc(len(in.UpstreamFlags)),
			Value:       in.UpstreamFlags,
		})
		limit := len(in.UpstreamFlags)
		if limit > 3 {
			limit = 3
		}
		for _, f := range in.UpstreamFlags[:limit] {
			flags = append(flags, "Upstream: "+f)
		}
	}

	riskScore = minF(riskScore, 1.0)

	rec, confidence := classify(riskScore)
	if in.AvgCheckAmount30d == nil && in.AccountTenureDays == nil {
		rec = RecInsufficientData
		confidence = 0.40
	}

	explanation := buildExplanation(riskScore, factors)

	return Result{
		ModelID:        ModelID,
		ModelVersion:   ModelVersion,
		AnalyzedAt:     now,
		Recommendation: rec,
		Confidence:     confidence,
		RiskScore:      riskScore,
		RiskFactors:    factors,
		Flags:          flags,
		Explanation:    explanation,
		ConfidenceByCategory: map[string]float64{
			"amount_pattern":   confidenceFor(in.AvgCheckAmount30d != nil, 0.85),
			"account_history":  confidenceFor(in.AccountTenureDays != nil, 0.80),
			"balance_coverage": confidenceFor(in.CurrentBalance != nil, 0.90),
		},
		isAdvisory:          true,
		requiresHumanReview: true,
	}
}

func classify(riskScore float64) (Recommendation, float64) {
	switch {
	case riskScore < 0.20:
		return RecLikelyLegitimate, 0.85
	case riskScore < 0.40:
		return RecNeedsReview, 0.75
	case riskScore < 0.70:
		return RecHighRisk, 0.80
	default:
		return RecAnomalyDetected, 0.70
	}
}

func confidenceFor(present bool, v float64) float64 {
	if present {
		return v
	}
	return 0.30
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
