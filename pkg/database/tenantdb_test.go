package database

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/jmalloway/checksub001/pkg/tenant"
)

func TestTenantDB_QueryScoped_BindsContextTenant(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer mockDB.Close()

	tdb := &TenantDB{DB: mockDB}
	rows := sqlmock.NewRows([]string{"id"}).AddRow("item-1")
	mock.ExpectQuery("SELECT id FROM check_items WHERE status = \\$1 AND tenant_id = \\$2").
		WithArgs("new", "tenant-a").
		WillReturnRows(rows)

	ctx := tenant.WithTenant(context.Background(), "tenant-a")
	got, err := tdb.QueryScoped(ctx, "SELECT id FROM check_items WHERE status = $1 AND tenant_id = $2", "new")
	if err != nil {
		t.Fatalf("QueryScoped: %v", err)
	}
	defer got.Close()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTenantDB_QueryScoped_RequiresBoundTenant(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer mockDB.Close()

	tdb := &TenantDB{DB: mockDB}
	_, err = tdb.QueryScoped(context.Background(), "SELECT 1")
	if err != tenant.ErrNoTenant {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}
}
