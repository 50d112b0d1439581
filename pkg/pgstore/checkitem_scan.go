package pgstore

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jmalloway/checksub001/pkg/model"
)

// checkItemColumns is shared between every SELECT against check_items so
// the column list and scanCheckItemRow stay in lockstep.
const checkItemColumns = `
	id, tenant_id, external_item_id, amount, currency, account_id, masked_account,
	routing_number, check_number, presented_date, check_date, micr_raw, item_type,
	account_type, payee_name, memo, status, risk_level,
	account_tenure_days, current_balance, average_balance_30d, avg_check_amount_30d,
	avg_check_amount_90d, avg_check_amount_365d, check_std_dev_30d, max_check_amount_90d,
	check_frequency_30d, check_count_7d, check_count_14d, total_check_amount_7d,
	total_check_amount_14d, returned_item_count_90d, exception_count_90d,
	overdraft_count_30d, overdraft_count_90d, nsf_count_90d, relationship_tenure_yrs,
	is_payroll_account, has_direct_deposit, deposit_regularity_score, check_number_gap,
	is_duplicate_check_number, is_out_of_sequence, check_age_days, is_stale_dated,
	is_post_dated, has_micr_anomaly, micr_confidence_score, has_alteration_flag,
	signature_match_score, prior_review_count, prior_approval_count, prior_rejection_count,
	ai_recommendation, ai_confidence, ai_explanation, ai_risk_factors, ai_flags_reviewed,
	assigned_reviewer_id, assigned_approver_id, queue_id, sla_due_at, sla_breached,
	requires_dual_control, pending_dual_control_dec_id, dual_control_reason,
	policy_version_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckItemRow(row rowScanner) (*model.CheckItem, error) {
	var it model.CheckItem
	var itemType, accountType, status, riskLevel string
	var aiFlagsReviewed pq.StringArray
	err := row.Scan(
		&it.ID, &it.TenantID, &it.ExternalItemID, (*int64)(&it.Amount), &it.Currency, &it.AccountID, &it.MaskedAccount,
		&it.RoutingNumber, &it.CheckNumber, &it.PresentedDate, &it.CheckDate, &it.MICRRaw, &itemType,
		&accountType, &it.PayeeName, &it.Memo, &status, &riskLevel,
		&it.AccountTenureDays, scanMoneyPtr(&it.CurrentBalance), scanMoneyPtr(&it.AverageBalance30d), scanMoneyPtr(&it.AvgCheckAmount30d),
		scanMoneyPtr(&it.AvgCheckAmount90d), scanMoneyPtr(&it.AvgCheckAmount365d), &it.CheckStdDev30d, scanMoneyPtr(&it.MaxCheckAmount90d),
		&it.CheckFrequency30d, &it.CheckCount7d, &it.CheckCount14d, scanMoneyPtr(&it.TotalCheckAmount7d),
		scanMoneyPtr(&it.TotalCheckAmount14d), &it.ReturnedItemCount90d, &it.ExceptionCount90d,
		&it.OverdraftCount30d, &it.OverdraftCount90d, &it.NSFCount90d, &it.RelationshipTenureYrs,
		&it.IsPayrollAccount, &it.HasDirectDeposit, &it.DepositRegularityScore, &it.CheckNumberGap,
		&it.IsDuplicateCheckNumber, &it.IsOutOfSequence, &it.CheckAgeDays, &it.IsStaleDated,
		&it.IsPostDated, &it.HasMICRAnomaly, &it.MICRConfidenceScore, &it.HasAlterationFlag,
		&it.SignatureMatchScore, &it.PriorReviewCount, &it.PriorApprovalCount, &it.PriorRejectionCount,
		&it.AIRecommendation, &it.AIConfidence, &it.AIExplanation, &it.AIRiskFactors, &aiFlagsReviewed,
		&it.AssignedReviewerID, &it.AssignedApproverID, &it.QueueID, &it.SLADueAt, &it.SLABreached,
		&it.RequiresDualControl, &it.PendingDualControlDecID, &it.DualControlReason,
		&it.PolicyVersionID, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.ItemType = model.ItemType(itemType)
	it.AccountType = model.AccountType(accountType)
	it.Status = model.Status(status)
	it.RiskLevel = model.RiskLevel(riskLevel)
	it.AIFlagsReviewed = []string(aiFlagsReviewed)
	return &it, nil
}

// scanMoneyPtr adapts a **model.Money destination to database/sql's
// Scanner-less nullable-int64 convention: scan into a local sql.NullInt64
// and translate after. database/sql calls Scan only once per column, so
// this returns a pointer whose underlying value is filled by a wrapping
// sql.Scanner. Implemented via moneyScanner below.
func scanMoneyPtr(dst **model.Money) any {
	return &moneyScanner{dst: dst}
}

type moneyScanner struct {
	dst **model.Money
}

func (m *moneyScanner) Scan(src any) error {
	if src == nil {
		*m.dst = nil
		return nil
	}
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return err
	}
	v := model.Money(n.Int64)
	*m.dst = &v
	return nil
}

func scanCheckItems(rows *sql.Rows) ([]model.CheckItem, error) {
	var out []model.CheckItem
	for rows.Next() {
		item, err := scanCheckItemRow(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan check item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

const upsertCheckItemSQL = `
	INSERT INTO check_items (` + checkItemColumns + `)
	VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,
		$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41,$42,
		$43,$44,$45,$46,$47,$48,$49,$50,$51,$52,$53,$54,$55,$56,$57,$58,$59,$60,$61,$62,
		$63,$64,$65,$66,$67,$68
	)
	ON CONFLICT (tenant_id, external_item_id) DO UPDATE SET
		amount = EXCLUDED.amount, status = EXCLUDED.status, risk_level = EXCLUDED.risk_level,
		account_tenure_days = EXCLUDED.account_tenure_days, current_balance = EXCLUDED.current_balance,
		average_balance_30d = EXCLUDED.average_balance_30d, avg_check_amount_30d = EXCLUDED.avg_check_amount_30d,
		avg_check_amount_90d = EXCLUDED.avg_check_amount_90d, avg_check_amount_365d = EXCLUDED.avg_check_amount_365d,
		check_std_dev_30d = EXCLUDED.check_std_dev_30d, max_check_amount_90d = EXCLUDED.max_check_amount_90d,
		check_frequency_30d = EXCLUDED.check_frequency_30d, check_count_7d = EXCLUDED.check_count_7d,
		check_count_14d = EXCLUDED.check_count_14d, total_check_amount_7d = EXCLUDED.total_check_amount_7d,
		total_check_amount_14d = EXCLUDED.total_check_amount_14d,
		returned_item_count_90d = EXCLUDED.returned_item_count_90d, exception_count_90d = EXCLUDED.exception_count_90d,
		overdraft_count_30d = EXCLUDED.overdraft_count_30d, overdraft_count_90d = EXCLUDED.overdraft_count_90d,
		nsf_count_90d = EXCLUDED.nsf_count_90d, relationship_tenure_yrs = EXCLUDED.relationship_tenure_yrs,
		is_payroll_account = EXCLUDED.is_payroll_account, has_direct_deposit = EXCLUDED.has_direct_deposit,
		deposit_regularity_score = EXCLUDED.deposit_regularity_score, check_number_gap = EXCLUDED.check_number_gap,
		is_duplicate_check_number = EXCLUDED.is_duplicate_check_number, is_out_of_sequence = EXCLUDED.is_out_of_sequence,
		check_age_days = EXCLUDED.check_age_days, is_stale_dated = EXCLUDED.is_stale_dated,
		is_post_dated = EXCLUDED.is_post_dated, has_micr_anomaly = EXCLUDED.has_micr_anomaly,
		micr_confidence_score = EXCLUDED.micr_confidence_score, has_alteration_flag = EXCLUDED.has_alteration_flag,
		signature_match_score = EXCLUDED.signature_match_score, ai_recommendation = EXCLUDED.ai_recommendation,
		ai_confidence = EXCLUDED.ai_confidence, ai_explanation = EXCLUDED.ai_explanation,
		ai_risk_factors = EXCLUDED.ai_risk_factors, ai_flags_reviewed = EXCLUDED.ai_flags_reviewed,
		queue_id = EXCLUDED.queue_id, sla_due_at = EXCLUDED.sla_due_at, sla_breached = EXCLUDED.sla_breached,
		requires_dual_control = EXCLUDED.requires_dual_control,
		pending_dual_control_dec_id = EXCLUDED.pending_dual_control_dec_id,
		dual_control_reason = EXCLUDED.dual_control_reason, policy_version_id = EXCLUDED.policy_version_id,
		updated_at = EXCLUDED.updated_at`

func checkItemArgs(it *model.CheckItem) []any {
	return []any{
		it.ID, it.TenantID, it.ExternalItemID, int64(it.Amount), it.Currency, it.AccountID, it.MaskedAccount,
		it.RoutingNumber, it.CheckNumber, it.PresentedDate, it.CheckDate, it.MICRRaw, string(it.ItemType),
		string(it.AccountType), it.PayeeName, it.Memo, string(it.Status), string(it.RiskLevel),
		it.AccountTenureDays, moneyArg(it.CurrentBalance), moneyArg(it.AverageBalance30d), moneyArg(it.AvgCheckAmount30d),
		moneyArg(it.AvgCheckAmount90d), moneyArg(it.AvgCheckAmount365d), it.CheckStdDev30d, moneyArg(it.MaxCheckAmount90d),
		it.CheckFrequency30d, it.CheckCount7d, it.CheckCount14d, moneyArg(it.TotalCheckAmount7d),
		moneyArg(it.TotalCheckAmount14d), it.ReturnedItemCount90d, it.ExceptionCount90d,
		it.OverdraftCount30d, it.OverdraftCount90d, it.NSFCount90d, it.RelationshipTenureYrs,
		it.IsPayrollAccount, it.HasDirectDeposit, it.DepositRegularityScore, it.CheckNumberGap,
		it.IsDuplicateCheckNumber, it.IsOutOfSequence, it.CheckAgeDays, it.IsStaleDated,
		it.IsPostDated, it.HasMICRAnomaly, it.MICRConfidenceScore, it.HasAlterationFlag,
		it.SignatureMatchScore, it.PriorReviewCount, it.PriorApprovalCount, it.PriorRejectionCount,
		it.AIRecommendation, it.AIConfidence, it.AIExplanation, it.AIRiskFactors, pq.StringArray(it.AIFlagsReviewed),
		it.AssignedReviewerID, it.AssignedApproverID, it.QueueID, it.SLADueAt, it.SLABreached,
		it.RequiresDualControl, it.PendingDualControlDecID, it.DualControlReason,
		it.PolicyVersionID, it.CreatedAt, it.UpdatedAt,
	}
}

func moneyArg(m *model.Money) any {
	if m == nil {
		return nil
	}
	return int64(*m)
}
