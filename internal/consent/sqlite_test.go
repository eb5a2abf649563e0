package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace-server/internal/domain"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger", "consent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(user, trial string) *Record {
	return &Record{
		UserID:        user,
		TrialID:       trial,
		WalletAddress: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		AgreementHash: HashAgreement("I agree to participate."),
		Signature:     "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		Chain:         ChainSolana,
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := sampleRecord("patient-1", "NCT0000AAAA")
	require.NoError(t, store.Save(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := store.Get(ctx, "patient-1", "NCT0000AAAA")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.WalletAddress, got.WalletAddress)
	assert.Equal(t, rec.AgreementHash, got.AgreementHash)
	assert.Equal(t, ChainSolana, got.Chain)

	_, err = store.Get(ctx, "patient-1", "NCT0000BBBB")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_RejectsSecondConsent(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("patient-1", "NCT0000AAAA")))
	err := store.Save(ctx, sampleRecord("patient-1", "NCT0000AAAA"))
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_ListAndExport(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("patient-1", "NCT0000AAAA")))
	require.NoError(t, store.Save(ctx, sampleRecord("patient-2", "NCT0000AAAA")))
	require.NoError(t, store.Save(ctx, sampleRecord("patient-1", "NCT0000BBBB")))

	list, err := store.ListByUser(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "NCT0000AAAA", list[0].TrialID)
	assert.Equal(t, "NCT0000BBBB", list[1].TrialID)

	empty, err := store.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	var export LedgerExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 3, export.Count)
	assert.Len(t, export.Consents, 3)
}

func TestHashAgreement(t *testing.T) {
	h := HashAgreement("  consent text\n")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashAgreement("consent text"))
	assert.NotEqual(t, h, HashAgreement("other text"))
	assert.Equal(t, []string{"consent", "wallet"}, PDASeeds("wallet"))
}
