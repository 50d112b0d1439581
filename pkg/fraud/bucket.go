package fraud

import (
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// AmountBucket coarsens a monetary amount into one of a small set of bands
// so FraudSharedArtifact never carries an exact dollar figure.
func AmountBucket(amount model.Money) string {
	f := amount.Float64()
	switch {
	case f < 100:
		return "0-100"
	case f < 500:
		return "100-500"
	case f < 1000:
		return "500-1000"
	case f < 5000:
		return "1000-5000"
	case f < 25000:
		return "5000-25000"
	default:
		return "25000+"
	}
}

// MonthBucket coarsens a date to its year-month.
func MonthBucket(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.UTC().Year(), t.UTC().Month())
}
