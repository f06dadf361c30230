package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "paycore", cfg.AppName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "INV", cfg.InvoicePrefix)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, 30, cfg.Gateway.TimeoutSeconds)
	assert.True(t, cfg.Gateway.Sandbox)
	assert.False(t, cfg.SeedDemoData)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("INVOICE_PREFIX", "ACME")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("GATEWAY_TIMEOUT_SECONDS", "5")
	t.Setenv("GATEWAY_SANDBOX", "off")
	t.Setenv("SEED_DEMO_DATA", "yes")

	cfg := Load()

	assert.Equal(t, "ACME", cfg.InvoicePrefix)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, 5, cfg.Gateway.TimeoutSeconds)
	assert.False(t, cfg.Gateway.Sandbox)
	assert.True(t, cfg.SeedDemoData)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("GATEWAY_TIMEOUT_SECONDS", "soon")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "-nope")

	cfg := Load()

	assert.Equal(t, 30, cfg.Gateway.TimeoutSeconds)
	assert.Equal(t, 100, cfg.DBMaxOpenConn)
}

func TestGatewayValidate(t *testing.T) {
	gw := GatewayConfig{LoginID: "login", TransactionKey: "key"}
	require.NoError(t, gw.Validate())

	assert.ErrorIs(t, GatewayConfig{LoginID: "login"}.Validate(), ErrGatewayNotConfigured)
	assert.ErrorIs(t, GatewayConfig{TransactionKey: "key"}.Validate(), ErrGatewayNotConfigured)
	assert.ErrorIs(t, GatewayConfig{LoginID: "  ", TransactionKey: "key"}.Validate(), ErrGatewayNotConfigured)
}
