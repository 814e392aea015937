package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfq-cli/internal/config"
	"github.com/sells-group/rfq-cli/internal/model"
)

func testConfig(dsn string) *config.Config {
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = dsn
	c.Batch.MaxConcurrentEvaluations = 5
	c.Triage.LicenseRenewalFloor = "5000"
	c.Triage.InsufficientTimeDays = 2
	c.Triage.BusinessCaseWindowDays = 90
	return c
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "test.db"))

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = testConfig("")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NoError(t, st.Migrate(context.Background()))
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "rfq.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = testConfig("x")
	cfg.Store.Driver = "mysql"

	_, err := initStore(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_PostgresBadURL(t *testing.T) {
	cfg = testConfig("://not a url")
	cfg.Store.Driver = "postgres"

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestInitEnv(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "env.db"))
	cfg.Triage.AutoDeclineEnabled = true

	env, err := initEnv(context.Background(), "cli")
	require.NoError(t, err)
	defer env.Close()

	assert.True(t, env.Service.AutoDeclineEnabled())
	require.NoError(t, env.Store.Ping(context.Background()))
}

func TestInitEnv_ZeroRenewalFloor(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "env.db"))
	cfg.Triage.LicenseRenewalFloor = "0"

	env, err := initEnv(context.Background(), "cli")
	require.NoError(t, err)
	defer env.Close()

	ctx := context.Background()
	v := decimal.NewFromInt(3_000)
	_, err = env.Service.CreateRFQ(ctx, &model.RFQ{ID: "renewal", EstimatedValue: &v, RFQType: "renewal", Quantity: 1})
	require.NoError(t, err)

	res, err := env.Service.Evaluate(ctx, "renewal")
	require.NoError(t, err)
	for _, o := range res.RuleOutcomes {
		if o.RuleID == "R003" {
			assert.NotEqual(t, model.ActionAutoDecline, o.Action)
		}
	}
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "env.db"))
	cfg.Batch.MaxConcurrentEvaluations = 0

	_, err := initEnv(context.Background(), "cli")
	assert.Error(t, err)
}

func TestInitEnv_LookupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lookup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lookup:\n  authorized_oems: [Acme Networks]\n"), 0o644))

	cfg = testConfig(filepath.Join(dir, "env.db"))
	cfg.Triage.LookupPath = path
	env, err := initEnv(context.Background(), "cli")
	require.NoError(t, err)
	env.Close()

	cfg.Triage.LookupPath = filepath.Join(dir, "missing.yaml")
	_, err = initEnv(context.Background(), "cli")
	assert.Error(t, err)
}
