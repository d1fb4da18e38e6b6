package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"goloja/internal/pkg/logger"
)

// PoolOptions ajusta o pool de conexões. Campos zerados usam os padrões.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxOpenConns == 0 {
		o.MaxOpenConns = 25
	}
	if o.MaxIdleConns == 0 {
		o.MaxIdleConns = 10
	}
	if o.ConnMaxLifetime == 0 {
		o.ConnMaxLifetime = 5 * time.Minute
	}
	if o.ConnMaxIdleTime == 0 {
		o.ConnMaxIdleTime = 2 * time.Minute
	}
	if o.PingTimeout == 0 {
		o.PingTimeout = 5 * time.Second
	}
	return o
}

// NewPostgresDB abre o pool com o driver lib/pq e confirma a conexão com um ping.
func NewPostgresDB(dataSourceName string, opts PoolOptions, log logger.Logger) (*sql.DB, error) {
	opts = opts.withDefaults()

	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir a conexão com o DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao realizar o ping inicial no DB: %w", err)
	}

	// Cada checkout segura um FOR UPDATE por produto; o pool limita quantos rodam juntos.
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	log.Info("Pool de conexões PostgreSQL pronto", map[string]interface{}{
		"max_open_conns": opts.MaxOpenConns,
		"max_idle_conns": opts.MaxIdleConns,
	})
	return db, nil
}
