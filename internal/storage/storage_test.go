package storage

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace-server/internal/domain"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestOpen_Memory(t *testing.T) {
	cfg := &domain.Config{Storage: domain.StorageConfig{Driver: domain.StorageMemory}}
	stores, err := Open(context.Background(), cfg, "", testLogger())
	require.NoError(t, err)
	assert.NoError(t, stores.Ping(context.Background()))
	assert.NoError(t, stores.Close(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := &domain.Config{Storage: domain.StorageConfig{Driver: "cassandra"}}
	_, err := Open(context.Background(), cfg, "", testLogger())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestOpenLedger(t *testing.T) {
	cfg := &domain.Config{Consent: domain.ConsentConfig{
		Driver:     domain.ConsentSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "ledger", "consent.db"),
	}}
	ledger, err := OpenLedger(cfg, "", testLogger())
	require.NoError(t, err)
	defer ledger.Close()

	n, err := ledger.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	cfg.Consent.Driver = "ipfs"
	_, err = OpenLedger(cfg, "", testLogger())
	assert.ErrorContains(t, err, "unknown consent driver")
}
