package checkitem

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// DemoProvider is a deterministic, in-memory CheckItemProvider for
// environments with no core-banking feed wired up yet: local development,
// demos, and the default in cmd/server when no feed adapter is configured.
// It never touches the network or a database.
type DemoProvider struct {
	seedAccounts []string
	now          func() time.Time
}

func NewDemoProvider() *DemoProvider {
	return &DemoProvider{
		seedAccounts: []string{"acct-demo-0001", "acct-demo-0002", "acct-demo-0003"},
		now:          time.Now,
	}
}

func (p *DemoProvider) FetchPresentedItems(ctx context.Context, tenantID string, amountMin model.Money) ([]PresentedItem, error) {
	now := p.now().UTC()
	var out []PresentedItem
	for i, acct := range p.seedAccounts {
		amount := model.Money(250_00 + int64(i)*137_00)
		if amount < amountMin {
			continue
		}
		out = append(out, PresentedItem{
			ExternalItemID: fmt.Sprintf("demo-%s-%06d", tenantID, randSeq()),
			Amount:         amount,
			Currency:       "USD",
			AccountID:      acct,
			MaskedAccount:  "****" + acct[len(acct)-4:],
			RoutingNumber:  "021000021",
			CheckNumber:    fmt.Sprintf("%04d", 1000+i),
			PresentedDate:  now,
			CheckDate:      now.Add(-48 * time.Hour),
			MICRRaw:        fmt.Sprintf("C%04dC A021000021A %sC", 1000+i, acct),
			ItemType:       model.ItemTypeOnUs,
			AccountType:    model.AccountType("checking"),
			PayeeName:      "Demo Payee",
			Memo:           "demo item",
		})
	}
	return out, nil
}

func (p *DemoProvider) FetchAccountContext(ctx context.Context, tenantID, accountID string) (AccountContext, error) {
	balance := model.Money(12_450_00)
	avg30 := model.Money(620_00)
	avg90 := model.Money(590_00)
	tenure := 900
	freq := 6.0
	return AccountContext{
		AccountTenureDays: &tenure,
		CurrentBalance:    &balance,
		AverageBalance30d: &balance,
		AvgCheckAmount30d: &avg30,
		AvgCheckAmount90d: &avg90,
		CheckFrequency30d: &freq,
	}, nil
}

func randSeq() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return binary.BigEndian.Uint32(b[:]) % 1_000_000
}
