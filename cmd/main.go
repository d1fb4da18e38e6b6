package main

import (
	"context"
	"database/sql"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"goloja/config"
	"goloja/internal/api/product"
	"goloja/internal/api/router"
	"goloja/internal/api/sale"
	"goloja/internal/api/stock"
	"goloja/internal/api/user"
	"goloja/internal/api/webhook"
	"goloja/internal/domain"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/chatwoot"
	"goloja/internal/pkg/database"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/telemetry"
	"goloja/internal/pkg/token"
	"goloja/internal/repository/memrepo"
	"goloja/internal/repository/pgrepo"
	"goloja/internal/repository/productrepo"
	"goloja/internal/repository/userrepo"
	"goloja/internal/service/inventoryservice"
	"goloja/internal/service/productservice"
	"goloja/internal/service/saleservice"
	"goloja/internal/service/settlementservice"
	"goloja/internal/service/userservice"
)

// appStore é o armazenamento transacional completo (PostgreSQL ou memória).
type appStore interface {
	inventoryservice.Store
	productservice.Store
	saleservice.Store
	settlementservice.Store
}

// @title GoLoja API
// @version 1.0
// @description ERP de loja: estoque por localização (LOJA/ARMAZEM), vendas e liquidação de pagamentos PIX.
// @BasePath /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	stdlog.Println("⚡ Inicializando serviço GoLoja...")
	if err := godotenv.Load(); err != nil {
		stdlog.Println("⚠️ Aviso: Arquivo .env não encontrado ou erro de leitura. Carregando configs apenas do ambiente do sistema.")
	}

	cfg := config.LoadConfig()
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("Configurações carregadas.", map[string]interface{}{"env": cfg.Environment})

	ctx := context.Background()

	// 1. Observabilidade
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelInsecure)
	if err != nil {
		log.Fatal("Falha ao inicializar OpenTelemetry.", err)
	}

	// 2. Armazenamento: PostgreSQL quando DATABASE_URL existe, memória caso contrário
	var (
		store appStore
		users domain.UserRepository
		db    *sql.DB
	)
	if cfg.UsesDatabase() {
		db, err = database.NewPostgresDB(cfg.DatabaseURL, database.PoolOptions{}, log)
		if err != nil {
			log.Fatal("Falha ao conectar ao banco de dados.", err)
		}
		store = pgrepo.NewStore(db, cfg.DBTimeout, log)
		users = userrepo.NewUserRepository(db, cfg.DBTimeout, log)
	} else {
		log.Warn("DATABASE_URL não definida: usando armazenamento em memória.", nil)
		mem := memrepo.NewStore()
		store, users = mem, mem
	}

	// 3. Cache (Redis) opcional
	var cacheClient cache.Client
	redisClient := cache.NewRedisClient(cfg.RedisAddr)
	if err := redisClient.Ping(); err != nil {
		log.Warn("Redis indisponível: cache e rate limit desligados.", map[string]interface{}{"addr": cfg.RedisAddr, "error": err.Error()})
		redisClient.Close()
	} else {
		cacheClient = redisClient
		defer redisClient.Close()
		log.Info("Conexão Redis estabelecida.", nil)
	}

	// 4. Gateways de pagamento
	gateways, err := cfg.Payment.Build(log)
	if err != nil {
		log.Fatal("Configuração de pagamento inválida.", err)
	}

	// 5. Injeção de dependências: Repository -> Service -> Handler
	productRepo := productrepo.NewProductRepository(store, cacheClient, cfg.CacheTimeout, log)
	ledger := inventoryservice.NewLedger(log)

	inventorySvc := inventoryservice.NewService(store, ledger, productRepo, log)
	productSvc := productservice.NewService(store, productRepo, ledger, log)
	saleSvc := saleservice.NewService(store, ledger, gateways, productRepo, cfg.SaleNumberPrefix, log)
	settlementSvc := settlementservice.NewService(store, saleSvc, gateways, log)

	tokenSvc := token.NewService(cfg.JWTSecretKey, cfg.TokenExpiry)
	userSvc := userservice.NewService(users, tokenSvc, log)
	if cfg.SeedAdminEmail != "" {
		if _, err := userSvc.EnsureAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			log.Fatal("Falha ao criar administrador inicial.", err)
		}
	}

	handler := router.NewRouter(router.Deps{
		Product:         product.NewHandler(productSvc, log),
		Stock:           stock.NewHandler(inventorySvc, log),
		Sale:            sale.NewHandler(saleSvc, log),
		Webhook:         webhook.NewHandler(settlementSvc, chatwoot.NewSource(), log),
		User:            user.NewHandler(userSvc, log),
		TokenSvc:        tokenSvc,
		Cache:           cacheClient,
		RateLimit:       cfg.RateLimitMaxRequests,
		RateLimitPeriod: cfg.RateLimitPeriod,
		Logger:          log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 6. Execução e Graceful Shutdown
	go func() {
		log.Info("Servidor GoLoja ouvindo na porta", map[string]interface{}{"port": cfg.Port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Servidor falhou.", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Sinal de encerramento recebido. Desligando servidor...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Desligamento do servidor forçado.", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Error("Falha ao descarregar telemetria.", err)
	}
	if db != nil {
		db.Close()
	}
	log.Info("Servidor encerrado com sucesso.", nil)
}
