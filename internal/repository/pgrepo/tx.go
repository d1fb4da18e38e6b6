package pgrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// tx implementa domain.Tx sobre *sql.Tx. Linhas lidas com Lock* ficam presas por FOR UPDATE.
type tx struct {
	tx     *sql.Tx
	cancel context.CancelFunc
	logger logger.Logger
}

func (t *tx) Commit() error {
	defer t.cancel()
	if err := t.tx.Commit(); err != nil {
		t.logger.Error("Erro ao commitar transação", err)
		return apperror.NewDBError("Falha ao confirmar transação", err)
	}
	return nil
}

// Rollback depois de um Commit bem-sucedido não é erro.
func (t *tx) Rollback() error {
	defer t.cancel()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return apperror.NewDBError("Falha ao desfazer transação", err)
	}
	return nil
}

func (t *tx) InsertProduct(ctx context.Context, p domain.Product) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.SKU, p.Name, p.Description, p.Price, p.Cost, p.MinStock,
		p.StockLoja, p.StockArmazem, p.Stock, p.Version, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.NewConflictError(fmt.Sprintf("SKU '%s' já cadastrado.", p.SKU))
	}
	if err != nil {
		t.logger.Error("Erro ao inserir produto", err)
		return apperror.NewDBError("Falha ao inserir produto", err)
	}
	return nil
}

func (t *tx) LockProduct(ctx context.Context, id string) (domain.Product, error) {
	if !validUUID(id) {
		return domain.Product{}, apperror.NewProductNotFoundError(id)
	}
	p, err := scanProduct(t.tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, apperror.NewProductNotFoundError(id)
	}
	if err != nil {
		t.logger.Error("Erro ao bloquear produto", err)
		return domain.Product{}, apperror.NewDBError("Falha ao ler produto", err)
	}
	return p, nil
}

// ApplyStockMovement grava a entrada do ledger e os contadores na mesma transação.
// A versão esperada protege contra escritas que não passaram pelo FOR UPDATE.
func (t *tx) ApplyStockMovement(ctx context.Context, mv domain.StockMovement, next domain.StockCounters, expectedVersion int) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO stock_movements (`+movementColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		mv.ID, mv.ProductID, mv.Type, mv.Quantity, mv.Reason, nullString(mv.Reference), nullString(mv.UserID),
		nullString(string(mv.Location)), nullString(string(mv.FromLocation)), nullString(string(mv.ToLocation)), mv.CreatedAt)
	if err != nil {
		t.logger.Error("Erro ao inserir movimentação", err)
		return apperror.NewDBError("Falha ao registrar movimentação", err)
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE products
         SET stock_loja = $1, stock_armazem = $2, stock = $3, version = version + 1, updated_at = $4
         WHERE id = $5 AND version = $6`,
		next.Loja, next.Armazem, next.Total, mv.CreatedAt, mv.ProductID, expectedVersion)
	if err != nil {
		t.logger.Error("Erro ao atualizar contadores", err)
		return apperror.NewDBError("Falha ao atualizar estoque", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return apperror.NewDBError("Falha ao verificar linhas afetadas", err)
	}
	if rows == 0 {
		t.logger.Warn("Conflito de versão ao atualizar estoque", map[string]interface{}{
			"product_id": mv.ProductID,
			"version":    expectedVersion,
		})
		return apperror.NewConflictError("O estoque foi modificado por outra operação. Tente novamente.")
	}
	return nil
}

func (t *tx) NetStockByReference(ctx context.Context, ref string) ([]domain.StockBalance, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT product_id, location, SUM(quantity)
         FROM stock_movements
         WHERE reference = $1 AND type IN ('SALE', 'RETURN')
         GROUP BY product_id, location
         ORDER BY product_id, location`, ref)
	if err != nil {
		return nil, apperror.NewDBError("Falha ao somar movimentações da venda", err)
	}
	defer rows.Close()

	var out []domain.StockBalance
	for rows.Next() {
		var b domain.StockBalance
		if err := rows.Scan(&b.ProductID, &b.Location, &b.Quantity); err != nil {
			return nil, apperror.NewDBError("Falha ao ler saldo", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewDBError("Falha ao somar movimentações da venda", err)
	}
	return out, nil
}

// NextSaleNumber usa uma sequence: números não voltam no rollback, mas nunca se repetem.
func (t *tx) NextSaleNumber(ctx context.Context) (int64, error) {
	var seq int64
	if err := t.tx.QueryRowContext(ctx, `SELECT nextval('sale_number_seq')`).Scan(&seq); err != nil {
		return 0, apperror.NewDBError("Falha ao gerar número da venda", err)
	}
	return seq, nil
}

func (t *tx) InsertSale(ctx context.Context, s domain.Sale) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO sales (`+saleColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		s.ID, s.SaleNumber, s.Status, s.Subtotal, s.Discount, s.DeliveryFee, s.Total,
		s.PaymentMethod, nullString(s.PaymentReference), nullString(s.Gateway), nullString(s.PixCode),
		nullString(s.QRCodeBase64), nullString(s.PaymentURL), nullJSON(s.GatewayResponse),
		nullString(s.LeadID), nullString(s.Notes), nullString(s.UserID), s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.NewConflictError(fmt.Sprintf("Número de venda %s duplicado.", s.SaleNumber))
	}
	if err != nil {
		t.logger.Error("Erro ao inserir venda", err)
		return apperror.NewDBError("Falha ao inserir venda", err)
	}

	for _, it := range s.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO sale_items (`+saleItemColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, s.ID, it.ProductID, it.Quantity, it.UnitPrice, it.Total, it.Location); err != nil {
			t.logger.Error("Erro ao inserir item da venda", err)
			return apperror.NewDBError("Falha ao inserir item da venda", err)
		}
	}
	return nil
}

func (t *tx) LockSale(ctx context.Context, id string) (domain.Sale, error) {
	if !validUUID(id) {
		return domain.Sale{}, apperror.NewSaleNotFoundError(id)
	}
	return findSale(ctx, t.tx, id, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
}

func (t *tx) LockSaleByPayment(ctx context.Context, externalReference, paymentReference string) (domain.Sale, error) {
	if validUUID(externalReference) {
		sale, err := t.LockSale(ctx, externalReference)
		if err == nil || !isNotFound(err) {
			return sale, err
		}
	}
	if paymentReference == "" {
		return domain.Sale{}, apperror.NewSaleNotFoundError(externalReference)
	}
	return findSale(ctx, t.tx, externalReference+paymentReference,
		`SELECT `+saleColumns+` FROM sales WHERE payment_reference = $1
         ORDER BY created_at LIMIT 1 FOR UPDATE`, paymentReference)
}

func (t *tx) UpdateSale(ctx context.Context, s domain.Sale) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE sales
         SET status = $2, payment_reference = $3, gateway = $4, pix_code = $5, qr_code_base64 = $6,
             payment_url = $7, gateway_response = $8, updated_at = $9
         WHERE id = $1`,
		s.ID, s.Status, nullString(s.PaymentReference), nullString(s.Gateway), nullString(s.PixCode),
		nullString(s.QRCodeBase64), nullString(s.PaymentURL), nullJSON(s.GatewayResponse), s.UpdatedAt)
	if err != nil {
		t.logger.Error("Erro ao atualizar venda", err)
		return apperror.NewDBError("Falha ao atualizar venda", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewSaleNotFoundError(s.ID)
	}
	return nil
}

// DeleteSale remove a venda; sale_items caem por ON DELETE CASCADE.
func (t *tx) DeleteSale(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		t.logger.Error("Erro ao excluir venda", err)
		return apperror.NewDBError("Falha ao excluir venda", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewSaleNotFoundError(id)
	}
	return nil
}

func (t *tx) FindLead(ctx context.Context, id string) (domain.Lead, error) {
	notFound := &apperror.NotFoundError{Msg: fmt.Sprintf("Lead com ID %s não existe.", id), Resource: "LEAD"}
	if !validUUID(id) {
		return domain.Lead{}, notFound
	}
	lead, err := scanLead(t.tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, notFound
	}
	if err != nil {
		return domain.Lead{}, apperror.NewDBError("Falha ao buscar lead", err)
	}
	return lead, nil
}

// FindOrCreateLead usa o telefone como chave natural. Um lead existente é devolvido sem alterações.
func (t *tx) FindOrCreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	out, err := scanLead(t.tx.QueryRowContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES ($1, $2, $3, $4, $5, $5)
         ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
         RETURNING `+leadColumns,
		lead.ID, lead.Name, lead.Phone, nullString(lead.Email), now))
	if err != nil {
		t.logger.Error("Erro ao gravar lead", err)
		return domain.Lead{}, apperror.NewDBError("Falha ao gravar lead", err)
	}
	return out, nil
}

func isNotFound(err error) bool {
	var nf *apperror.NotFoundError
	return errors.As(err, &nf)
}
