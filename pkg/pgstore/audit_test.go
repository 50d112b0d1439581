package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/jmalloway/checksub001/pkg/model"
)

func TestAuditStore_LatestHashTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT integrity_hash FROM audit_logs").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"integrity_hash"}).AddRow("abc123"))

	store := NewAuditStore(db)
	hash, ok, err := store.LatestHash(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc123", hash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStore_LatestHashEmptyChain(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT integrity_hash FROM audit_logs").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"integrity_hash"}))

	store := NewAuditStore(db)
	_, ok, err := store.LatestHash(context.Background(), "t1")
	require.NoError(t, err)
	require.False(t, ok, "an empty chain must report no prior hash")
}

func TestAuditStore_AppendBindsChainKeyForSystemEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// System events (nil tenant) chain under the reserved partition key,
	// never under a real tenant's chain.
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(
			"row-1", "\x00system", nil, sqlmock.AnyArg(), nil, "", "",
			"", "SYSTEM_STARTUP", "system", "checkopsd", "boot",
			nil, nil, nil, nil, "genesis", "deadbeef",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewAuditStore(db)
	err = store.Append(context.Background(), &model.AuditLog{
		ID:            "row-1",
		Timestamp:     time.Now().UTC(),
		Action:        model.AuditSystemStartup,
		ResourceType:  "system",
		ResourceID:    "checkopsd",
		Description:   "boot",
		PreviousHash:  "genesis",
		IntegrityHash: "deadbeef",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
