package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"goloja/internal/pkg/payment"
)

// Config armazena todas as configurações do GoLoja.
type Config struct {
	// Geral
	Port        string
	Environment string
	LogLevel    string

	// Banco de Dados (PostgreSQL). Vazio liga o armazenamento em memória.
	DatabaseURL string
	DBTimeout   time.Duration

	// Cache (Redis)
	RedisAddr    string
	CacheTimeout time.Duration

	// Segurança (JWT)
	JWTSecretKey string
	TokenExpiry  time.Duration

	// Rate Limiting (login e registro)
	RateLimitMaxRequests int
	RateLimitPeriod      time.Duration

	// Vendas
	SaleNumberPrefix string

	// Pagamentos
	Payment payment.Settings

	// Observabilidade (OpenTelemetry)
	ServiceName  string
	OTelEndpoint string
	OTelInsecure bool

	// Administrador criado na subida quando ainda não existe
	SeedAdminEmail    string
	SeedAdminPassword string
}

// LoadConfig carrega as configurações a partir das variáveis de ambiente.
func LoadConfig() *Config {
	gatewayTimeout := getDurationEnv("PAYMENT_GATEWAY_TIMEOUT_SEC", 15) * time.Second

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBTimeout:   getDurationEnv("DB_TIMEOUT_SEC", 5) * time.Second,

		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		CacheTimeout: getDurationEnv("CACHE_TIMEOUT_SEC", 10) * time.Second,

		JWTSecretKey: mustGetEnv("JWT_SECRET_KEY"),
		TokenExpiry:  getDurationEnv("JWT_EXPIRY_MIN", 60) * time.Minute,

		RateLimitMaxRequests: getIntEnv("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitPeriod:      getDurationEnv("RATE_LIMIT_PERIOD_MIN", 1) * time.Minute,

		SaleNumberPrefix: getEnv("SALE_NUMBER_PREFIX", "VND"),

		Payment: payment.Settings{
			Default:         strings.ToLower(getEnv("PAYMENT_GATEWAY", "")),
			Mock:            getBoolEnv("PAYMENT_GATEWAY_MOCK", false),
			NotificationURL: getEnv("WEBHOOK_BASE_URL", ""),
			Timeout:         gatewayTimeout,

			MercadoPagoAccessToken: getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),

			AsaasAPIKey:  getEnv("ASAAS_API_KEY", ""),
			AsaasBaseURL: getEnv("ASAAS_BASE_URL", payment.AsaasProductionURL),

			PagarMeSecretKey: getEnv("PAGARME_SECRET_KEY", ""),
			PagarMeBaseURL:   getEnv("PAGARME_BASE_URL", payment.PagarMeURL),

			GerenciaNet: payment.GerenciaNetOptions{
				ClientID:     getEnv("GERENCIANET_CLIENT_ID", ""),
				ClientSecret: getEnv("GERENCIANET_CLIENT_SECRET", ""),
				PixKey:       getEnv("GERENCIANET_PIX_KEY", ""),
				BaseURL:      getEnv("GERENCIANET_BASE_URL", payment.GerenciaNetProductionURL),
				CertFile:     getEnv("GERENCIANET_CERT_FILE", ""),
				KeyFile:      getEnv("GERENCIANET_KEY_FILE", ""),
				Timeout:      gatewayTimeout,
			},
		},

		ServiceName:  getEnv("OTEL_SERVICE_NAME", "goloja"),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure: getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),

		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
	}

	return cfg
}

// UsesDatabase informa se o PostgreSQL foi configurado.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// getEnv lê a variável de ambiente ou retorna um valor padrão.
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// mustGetEnv lê a variável de ambiente, fatal se não estiver presente.
func mustGetEnv(key string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Fatalf("❌ Erro de Configuração: A variável de ambiente %s deve ser definida.", key)
	return ""
}

// getDurationEnv lê uma variável de ambiente numérica e retorna-a como time.Duration.
func getDurationEnv(key string, defaultValue int) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue))
}

// getIntEnv lê uma variável de ambiente numérica e retorna-a como int.
func getIntEnv(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("⚠️ Aviso: Valor de %s ('%s') não é um número inteiro válido. Usando padrão (%d).", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("⚠️ Aviso: Valor de %s ('%s') não é booleano. Usando padrão (%t).", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
