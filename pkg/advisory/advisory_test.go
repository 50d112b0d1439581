package advisory

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int             { return &v }
func floatPtr(v float64) *float64   { return &v }

func TestScore_CleanItemIsLikelyLegitimate(t *testing.T) {
	res := Score(Input{
		Amount:            500,
		AvgCheckAmount30d: floatPtr(450),
		AccountTenureDays: intPtr(1000),
		CurrentBalance:    floatPtr(10_000),
	}, testNow)
	if res.Recommendation != RecLikelyLegitimate {
		t.Fatalf("got %s (score %f)", res.Recommendation, res.RiskScore)
	}
	if res.RiskScore != 0 {
		t.Fatalf("clean item must score 0, got %f", res.RiskScore)
	}
}

func TestScore_AmountAnomalyWeight(t *testing.T) {
	res := Score(Input{
		Amount:            2000,
		AvgCheckAmount30d: floatPtr(500), // ratio 4 > 3
		AccountTenureDays: intPtr(1000),
	}, testNow)
	if res.RiskScore != 0.25 {
		t.Fatalf("amount anomaly must contribute exactly 0.25, got %f", res.RiskScore)
	}
	if len(res.RiskFactors) != 1 || res.RiskFactors[0].Factor != "amount_anomaly" {
		t.Fatalf("got factors %+v", res.RiskFactors)
	}
}

func TestScore_TenurePenaltyTiers(t *testing.T) {
	young := Score(Input{Amount: 100, AccountTenureDays: intPtr(10), AvgCheckAmount30d: floatPtr(100)}, testNow)
	if young.RiskScore != 0.15 {
		t.Fatalf("tenure <30d must contribute 0.15, got %f", young.RiskScore)
	}
	mid := Score(Input{Amount: 100, AccountTenureDays: intPtr(60), AvgCheckAmount30d: floatPtr(100)}, testNow)
	if mid.RiskScore != 0.075 {
		t.Fatalf("tenure <90d must contribute 0.075, got %f", mid.RiskScore)
	}
}

func TestScore_ReturnHistoryCapped(t *testing.T) {
	res := Score(Input{
		Amount: 100, AvgCheckAmount30d: floatPtr(100), AccountTenureDays: intPtr(1000),
		ReturnedItemCount90d: intPtr(10),
	}, testNow)
	if res.RiskScore != 0.30 {
		t.Fatalf("return history caps at 0.30, got %f", res.RiskScore)
	}
}

func TestScore_UpstreamFlagsCapped(t *testing.T) {
	res := Score(Input{
		Amount: 100, AvgCheckAmount30d: floatPtr(100), AccountTenureDays: intPtr(1000),
		UpstreamFlags: []string{"a", "b", "c", "d", "e", "f"},
	}, testNow)
	if res.RiskScore != 0.20 {
		t.Fatalf("upstream flags cap at 0.20, got %f", res.RiskScore)
	}
}

func TestScore_TotalCappedAtOne(t *testing.T) {
	res := Score(Input{
		Amount:               100_000,
		AvgCheckAmount30d:    floatPtr(100),
		AccountTenureDays:    intPtr(5),
		ReturnedItemCount90d: intPtr(10),
		CurrentBalance:       floatPtr(50),
		UpstreamFlags:        []string{"a", "b", "c", "d", "e"},
	}, testNow)
	if res.RiskScore > 1.0 {
		t.Fatalf("score must cap at 1.0, got %f", res.RiskScore)
	}
	if res.Recommendation != RecAnomalyDetected {
		t.Fatalf("got %s", res.Recommendation)
	}
}

func TestScore_InsufficientDataWithoutCoreInputs(t *testing.T) {
	res := Score(Input{Amount: 500}, testNow)
	if res.Recommendation != RecInsufficientData {
		t.Fatalf("got %s", res.Recommendation)
	}
}

func TestScore_Deterministic(t *testing.T) {
	in := Input{
		Amount: 2000, AvgCheckAmount30d: floatPtr(500),
		AccountTenureDays: intPtr(20), UpstreamFlags: []string{"stale date"},
	}
	a := Score(in, testNow)
	b := Score(in, testNow)
	aJSON, _ := json.Marshal(a)
	bJSON, _ := json.Marshal(b)
	if string(aJSON) != string(bJSON) {
		t.Fatalf("scorer must be a pure function of its input")
	}
}

func TestMarshalJSON_AdvisoryBooleansAlwaysTrue(t *testing.T) {
	// Even a zero-valued Result (unexported fields false) must serialize
	// both guardrail booleans as true.
	var res Result
	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"is_advisory":true`) {
		t.Fatalf("is_advisory must serialize true: %s", s)
	}
	if !strings.Contains(s, `"requires_human_review":true`) {
		t.Fatalf("requires_human_review must serialize true: %s", s)
	}
	if res.IsAdvisory() != true || res.RequiresHumanReview() != true {
		t.Fatalf("accessors must be constant true")
	}
}
