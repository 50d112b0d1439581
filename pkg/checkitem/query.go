package checkitem

import (
	"context"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// Filter is the union of filter predicates the list endpoint supports.
// Every field is optional; a nil/zero field means "no constraint on this
// dimension".
type Filter struct {
	Status          []model.Status
	RiskLevel       []model.RiskLevel
	AmountMin       *model.Money
	AmountMax       *model.Money
	QueueID         *string
	AssignedUserID  *string
	HasAIFlags      *bool
	SLABreachedOnly *bool
	PresentedFrom   *time.Time
	PresentedTo     *time.Time
}

// Page is a pagination window.
type Page struct {
	PageNumber int // 1-based
	PageSize   int
}

// ListResult is one page of tenant-scoped items plus the total matching
// the filter (for client-side page-count rendering).
type ListResult struct {
	Items      []model.CheckItem
	TotalCount int
}

// ReadStore is the query surface backing the list and adjacent-navigation
// endpoints. Every method is implicitly tenant-scoped by the TenantDB the
// concrete implementation wraps (see pkg/database); this package never
// passes a tenant_id as a plain argument precisely so a reviewer can see
// at a glance that scoping is enforced one layer down, not forgotten here.
type ReadStore interface {
	List(ctx context.Context, filter Filter, page Page) (ListResult, error)
	// Adjacent returns the immediate predecessor and successor of itemID
	// under the ordering (priority desc, presented_date asc, id asc),
	// restricted to rows matching filter.
	Adjacent(ctx context.Context, itemID string, filter Filter) (prev, next *model.CheckItem, err error)
	GetByID(ctx context.Context, itemID string) (*model.CheckItem, error)
}

// QueryService implements the tenant-scoped read paths.
type QueryService struct {
	store ReadStore
}

func NewQueryService(store ReadStore) *QueryService {
	return &QueryService{store: store}
}

func (q *QueryService) List(ctx context.Context, filter Filter, page Page) (ListResult, error) {
	if page.PageNumber < 1 {
		page.PageNumber = 1
	}
	if page.PageSize < 1 || page.PageSize > 200 {
		page.PageSize = 50
	}
	return q.store.List(ctx, filter, page)
}

func (q *QueryService) Adjacent(ctx context.Context, itemID string, filter Filter) (prev, next *model.CheckItem, err error) {
	return q.store.Adjacent(ctx, itemID, filter)
}

func (q *QueryService) GetByID(ctx context.Context, itemID string) (*model.CheckItem, error) {
	return q.store.GetByID(ctx, itemID)
}
