package policy

import "github.com/jmalloway/checksub001/pkg/model"

// fieldValue resolves a condition's field name against a check item:
// the closed set of readable fields plus the four derived ratio fields.
// Numeric fields are upcast to float64 so computed ratios (also float64)
// compare consistently with stored fields; rules operate on ratios and
// thresholds, not exact cents.
func fieldValue(field string, item *model.CheckItem) (any, bool) {
	switch field {
	case "amount":
		return item.Amount.Float64(), true
	case "account_type":
		return string(item.AccountType), true
	case "item_type":
		return string(item.ItemType), true
	case "risk_level":
		return string(item.RiskLevel), true
	case "payee_name":
		return item.PayeeName, true
	case "memo":
		return item.Memo, true

	case "account_tenure_days":
		return intPtrToFloat(item.AccountTenureDays)
	case "current_balance":
		return moneyPtrToFloat(item.CurrentBalance)
	case "average_balance_30d":
		return moneyPtrToFloat(item.AverageBalance30d)

	case "avg_check_amount_30d":
		return moneyPtrToFloat(item.AvgCheckAmount30d)
	case "avg_check_amount_90d":
		return moneyPtrToFloat(item.AvgCheckAmount90d)
	case "avg_check_amount_365d":
		return moneyPtrToFloat(item.AvgCheckAmount365d)
	case "check_std_dev_30d":
		return floatPtrToFloat(item.CheckStdDev30d)
	case "max_check_amount_90d":
		return moneyPtrToFloat(item.MaxCheckAmount90d)

	case "check_frequency_30d":
		return floatPtrToFloat(item.CheckFrequency30d)
	case "check_count_7d":
		return intPtrToFloat(item.CheckCount7d)
	case "check_count_14d":
		return intPtrToFloat(item.CheckCount14d)
	case "total_check_amount_7d":
		return moneyPtrToFloat(item.TotalCheckAmount7d)
	case "total_check_amount_14d":
		return moneyPtrToFloat(item.TotalCheckAmount14d)

	case "returned_item_count_90d":
		return intPtrToFloat(item.ReturnedItemCount90d)
	case "exception_count_90d":
		return intPtrToFloat(item.ExceptionCount90d)

	case "overdraft_count_30d":
		return intPtrToFloat(item.OverdraftCount30d)
	case "overdraft_count_90d":
		return intPtrToFloat(item.OverdraftCount90d)
	case "nsf_count_90d":
		return intPtrToFloat(item.NSFCount90d)

	case "relationship_tenure_years":
		return floatPtrToFloat(item.RelationshipTenureYrs)
	case "is_payroll_account":
		return boolPtrToAny(item.IsPayrollAccount)
	case "has_direct_deposit":
		return boolPtrToAny(item.HasDirectDeposit)
	case "deposit_regularity_score":
		return floatPtrToFloat(item.DepositRegularityScore)

	case "check_number_gap":
		return intPtrToFloat(item.CheckNumberGap)
	case "is_duplicate_check_number":
		return boolPtrToAny(item.IsDuplicateCheckNumber)
	case "is_out_of_sequence":
		return boolPtrToAny(item.IsOutOfSequence)

	case "check_age_days":
		return intPtrToFloat(item.CheckAgeDays)
	case "is_stale_dated":
		return boolPtrToAny(item.IsStaleDated)
	case "is_post_dated":
		return boolPtrToAny(item.IsPostDated)

	case "has_micr_anomaly":
		return boolPtrToAny(item.HasMICRAnomaly)
	case "micr_confidence_score":
		return floatPtrToFloat(item.MICRConfidenceScore)
	case "has_alteration_flag":
		return boolPtrToAny(item.HasAlterationFlag)
	case "signature_match_score":
		return floatPtrToFloat(item.SignatureMatchScore)

	case "prior_review_count":
		return intPtrToFloat(item.PriorReviewCount)
	case "prior_approval_count":
		return intPtrToFloat(item.PriorApprovalCount)
	case "prior_rejection_count":
		return intPtrToFloat(item.PriorRejectionCount)

	case "amount_vs_avg_ratio":
		return ratio(item.Amount.Float64(), item.AvgCheckAmount30d)
	case "amount_vs_max_ratio":
		return ratio(item.Amount.Float64(), item.MaxCheckAmount90d)
	case "amount_vs_balance_ratio":
		return ratio(item.Amount.Float64(), item.CurrentBalance)
	case "velocity_7d_ratio":
		return ratio(item.Amount.Float64(), item.TotalCheckAmount7d)
	}
	return nil, false
}

func ratio(numerator float64, denominator *model.Money) (any, bool) {
	v, ok := model.RatioF(numerator, moneyPtrAsFloatPtr(denominator))
	if !ok {
		return nil, false
	}
	return v, true
}

func moneyPtrAsFloatPtr(m *model.Money) *float64 {
	if m == nil {
		return nil
	}
	f := m.Float64()
	return &f
}

func intPtrToFloat(p *int) (any, bool) {
	if p == nil {
		return nil, false
	}
	return float64(*p), true
}

func floatPtrToFloat(p *float64) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

func moneyPtrToFloat(p *model.Money) (any, bool) {
	if p == nil {
		return nil, false
	}
	return p.Float64(), true
}

func boolPtrToAny(p *bool) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}
