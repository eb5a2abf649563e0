package consent

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace-server/internal/domain"
)

var recordColumnNames = []string{
	"id", "user_id", "trial_id", "wallet_address", "agreement_hash", "signature",
	"tx_signature", "chain", "created_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = store.Close()
	})
	return store, mock
}

func TestNewPostgresStore_RequiresDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	rec := sampleRecord("patient-1", "NCT0000AAAA")

	mock.ExpectQuery("INSERT INTO consent_records").
		WithArgs(rec.UserID, rec.TrialID, rec.WalletAddress, rec.AgreementHash, rec.Signature,
			"", "solana", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, store.Save(context.Background(), rec))
	assert.Equal(t, int64(7), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO consent_records").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := store.Save(context.Background(), sampleRecord("patient-1", "NCT0000AAAA"))
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM consent_records WHERE user_id = \\$1 AND trial_id = \\$2").
		WithArgs("patient-1", "NCT0000AAAA").
		WillReturnRows(sqlmock.NewRows(recordColumnNames).
			AddRow(int64(3), "patient-1", "NCT0000AAAA", "0xabc", "deadbeef", "0xsig", "", "evm", created))
	mock.ExpectQuery("SELECT .+ FROM consent_records WHERE user_id = \\$1 AND trial_id = \\$2").
		WithArgs("patient-1", "NCT0000BBBB").
		WillReturnRows(sqlmock.NewRows(recordColumnNames))

	got, err := store.Get(context.Background(), "patient-1", "NCT0000AAAA")
	require.NoError(t, err)
	assert.Equal(t, ChainEVM, got.Chain)
	assert.Equal(t, created, got.CreatedAt)

	_, err = store.Get(context.Background(), "patient-1", "NCT0000BBBB")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCountExport(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE user_id = \\$1 ORDER BY id").
		WithArgs("patient-1").
		WillReturnRows(sqlmock.NewRows(recordColumnNames).
			AddRow(int64(1), "patient-1", "NCT0000AAAA", "w", "h", "s", "", "solana", created).
			AddRow(int64(2), "patient-1", "NCT0000BBBB", "w", "h", "s", "tx", "solana", created))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery("FROM consent_records ORDER BY id").
		WillReturnRows(sqlmock.NewRows(recordColumnNames).
			AddRow(int64(1), "patient-1", "NCT0000AAAA", "w", "h", "s", "", "solana", created))

	ctx := context.Background()
	list, err := store.ListByUser(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tx", list[1].TxSignature)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"count": 1`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
