package advisory

import (
	"fmt"
	"strings"
)

func formatRatioDesc(ratio float64) string {
	return fmt.Sprintf("Amount is %.1fx the 30-day average", ratio)
}

func formatTenureDesc(days int) string {
	return fmt.Sprintf("Account is only %d days old", days)
}

func formatTenureFlag(days int) string {
	return fmt.Sprintf("New account (%d days)", days)
}

func formatReturnDesc(count int) string {
	return fmt.Sprintf("%d returned items in last 90 days", count)
}

func formatReturnFlag(count int) string {
	return fmt.Sprintf("Return history (%d in 90d)", count)
}

func formatUpstreamDesc(count int) string {
	return fmt.Sprintf("%d flags from source system", count)
}

func buildExplanation(riskScore float64, factors []RiskFactor) string {
	if len(factors) == 0 {
		return "ADVISORY: No significant risk factors detected. Standard review recommended."
	}
	limit := len(factors)
	if limit > 3 {
		limit = 3
	}
	descs := make([]string, limit)
	for i := 0; i < limit; i++ {
		descs[i] = factors[i].Description
	}
	return fmt.Sprintf("ADVISORY: Risk score %.0f%%. Key factors: %s", riskScore*100, strings.Join(descs, ", "))
}
