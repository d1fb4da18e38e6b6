package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"goloja/config"
	"goloja/internal/pkg/payment"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "segredo")

	cfg := config.LoadConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.UsesDatabase())
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
	assert.Equal(t, "VND", cfg.SaleNumberPrefix)
	assert.False(t, cfg.Payment.Mock)
	assert.Equal(t, payment.AsaasProductionURL, cfg.Payment.AsaasBaseURL)
	assert.Equal(t, 15*time.Second, cfg.Payment.Timeout)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "segredo")
	t.Setenv("DATABASE_URL", "postgres://loja@localhost/loja?sslmode=disable")
	t.Setenv("PAYMENT_GATEWAY", "Asaas")
	t.Setenv("PAYMENT_GATEWAY_MOCK", "true")
	t.Setenv("SALE_NUMBER_PREFIX", "PED")
	t.Setenv("DB_TIMEOUT_SEC", "abc")
	t.Setenv("GERENCIANET_CLIENT_ID", "client")

	cfg := config.LoadConfig()
	assert.True(t, cfg.UsesDatabase())
	assert.Equal(t, "asaas", cfg.Payment.Default)
	assert.True(t, cfg.Payment.Mock)
	assert.Equal(t, "PED", cfg.SaleNumberPrefix)
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
	assert.Equal(t, "client", cfg.Payment.GerenciaNet.ClientID)
}
