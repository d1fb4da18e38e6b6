// Package pgrepo implementa o armazenamento transacional sobre PostgreSQL (lib/pq).
package pgrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// Store implementa domain.TxBeginner, os repositórios de leitura e a trilha de webhooks.
type Store struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewStore cria o repositório. DBTimeout limita cada transação inteira.
func NewStore(db *sql.DB, timeout time.Duration, log logger.Logger) *Store {
	return &Store{DB: db, DBTimeout: timeout, logger: log}
}

// BeginTx inicia uma transação com timeout; o contexto é liberado no Commit/Rollback.
func (s *Store) BeginTx(ctx context.Context) (domain.Tx, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	sqlTx, err := s.DB.BeginTx(ctxTimeout, nil)
	if err != nil {
		cancel()
		s.logger.Error("Erro ao iniciar transação", err)
		return nil, apperror.NewDBError("Falha ao iniciar transação", err)
	}
	return &tx{tx: sqlTx, cancel: cancel, logger: s.logger}, nil
}

// FindProduct busca um produto sem bloqueio.
func (s *Store) FindProduct(ctx context.Context, id string) (domain.Product, error) {
	if !validUUID(id) {
		return domain.Product{}, apperror.NewProductNotFoundError(id)
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	defer cancel()

	p, err := scanProduct(s.DB.QueryRowContext(ctxTimeout,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, apperror.NewProductNotFoundError(id)
	}
	if err != nil {
		return domain.Product{}, apperror.NewDBError("Falha ao buscar produto", err)
	}
	return p, nil
}

// ListProducts lista produtos ativos por nome, com filtro opcional de estoque baixo.
func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	defer cancel()

	const where = ` WHERE is_active AND ($1 = '' OR name ILIKE '%' || $1 || '%') AND (NOT $2 OR stock <= min_stock)`

	var total int
	if err := s.DB.QueryRowContext(ctxTimeout, `SELECT COUNT(*) FROM products`+where,
		filter.Name, filter.LowStockOnly).Scan(&total); err != nil {
		return nil, 0, apperror.NewDBError("Falha ao contar produtos", err)
	}

	limit, offset := window(filter.Page, filter.Limit)
	rows, err := s.DB.QueryContext(ctxTimeout,
		`SELECT `+productColumns+` FROM products`+where+` ORDER BY name LIMIT $3 OFFSET $4`,
		filter.Name, filter.LowStockOnly, limit, offset)
	if err != nil {
		return nil, 0, apperror.NewDBError("Falha ao listar produtos", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, apperror.NewDBError("Falha ao ler produto", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.NewDBError("Falha ao listar produtos", err)
	}
	return out, total, nil
}

// ListMovements retorna o histórico do produto do mais recente para o mais antigo.
// limit <= 0 devolve tudo.
func (s *Store) ListMovements(ctx context.Context, productID string, page, limit int) ([]domain.StockMovement, int, error) {
	if !validUUID(productID) {
		return nil, 0, nil
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	defer cancel()

	var total int
	if err := s.DB.QueryRowContext(ctxTimeout,
		`SELECT COUNT(*) FROM stock_movements WHERE product_id = $1`, productID).Scan(&total); err != nil {
		return nil, 0, apperror.NewDBError("Falha ao contar movimentações", err)
	}

	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE product_id = $1 ORDER BY created_at DESC, seq DESC`
	args := []interface{}{productID}
	if limit > 0 {
		l, offset := window(page, limit)
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, l, offset)
	}

	rows, err := s.DB.QueryContext(ctxTimeout, query, args...)
	if err != nil {
		return nil, 0, apperror.NewDBError("Falha ao listar movimentações", err)
	}
	defer rows.Close()

	var out []domain.StockMovement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, 0, apperror.NewDBError("Falha ao ler movimentação", err)
		}
		out = append(out, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.NewDBError("Falha ao listar movimentações", err)
	}
	return out, total, nil
}

// FindSale busca uma venda com seus itens, sem bloqueio.
func (s *Store) FindSale(ctx context.Context, id string) (domain.Sale, error) {
	if !validUUID(id) {
		return domain.Sale{}, apperror.NewSaleNotFoundError(id)
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	defer cancel()
	return findSale(ctxTimeout, s.DB, id, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
}

// ListSales lista vendas da mais recente para a mais antiga.
func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	defer cancel()

	status := string(filter.Status)
	var total int
	if err := s.DB.QueryRowContext(ctxTimeout,
		`SELECT COUNT(*) FROM sales WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, apperror.NewDBError("Falha ao contar vendas", err)
	}

	limit, offset := window(filter.Page, filter.Limit)
	rows, err := s.DB.QueryContext(ctxTimeout,
		`SELECT `+saleColumns+` FROM sales WHERE ($1 = '' OR status = $1)
         ORDER BY created_at DESC, sale_number DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, apperror.NewDBError("Falha ao listar vendas", err)
	}
	defer rows.Close()

	var (
		sales []domain.Sale
		ids   []string
	)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, apperror.NewDBError("Falha ao ler venda", err)
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.NewDBError("Falha ao listar vendas", err)
	}

	items, err := loadItems(ctxTimeout, s.DB, ids...)
	if err != nil {
		return nil, 0, apperror.NewDBError("Falha ao carregar itens das vendas", err)
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, total, nil
}

// InsertWebhookLog grava a auditoria fora de qualquer transação de negócio.
func (s *Store) InsertWebhookLog(ctx context.Context, log domain.WebhookLog) (domain.WebhookLog, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	defer cancel()

	_, err := s.DB.ExecContext(ctxTimeout,
		`INSERT INTO webhook_logs (id, source, event, data, processed, error, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.Source, log.Event, nullJSON(log.Data), log.Processed, nullString(log.Error), log.CreatedAt)
	if err != nil {
		s.logger.Error("Erro ao gravar webhook_log", err)
		return domain.WebhookLog{}, apperror.NewDBError("Falha ao gravar webhook", err)
	}
	return log, nil
}

// MarkWebhookLog registra o resultado do processamento.
func (s *Store) MarkWebhookLog(ctx context.Context, id string, processed bool, errMsg string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, s.DBTimeout)
	defer cancel()

	res, err := s.DB.ExecContext(ctxTimeout,
		`UPDATE webhook_logs
         SET processed = $2, error = $3, processed_at = CASE WHEN $2 THEN NOW() ELSE NULL END
         WHERE id = $1`,
		id, processed, nullString(errMsg))
	if err != nil {
		return apperror.NewDBError("Falha ao atualizar webhook", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFoundError(fmt.Sprintf("webhook log %s", id))
	}
	return nil
}

// findSale lê o cabeçalho e os itens. key aparece na mensagem de não encontrado.
func findSale(ctx context.Context, q querier, key, query string, args ...interface{}) (domain.Sale, error) {
	sale, err := scanSale(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, apperror.NewSaleNotFoundError(key)
	}
	if err != nil {
		return domain.Sale{}, apperror.NewDBError("Falha ao buscar venda", err)
	}
	items, err := loadItems(ctx, q, sale.ID)
	if err != nil {
		return domain.Sale{}, apperror.NewDBError("Falha ao carregar itens da venda", err)
	}
	sale.Items = items[sale.ID]
	return sale, nil
}

func window(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return limit, (page - 1) * limit
}
