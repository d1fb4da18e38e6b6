package pgrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"goloja/internal/domain"
)

// querier é satisfeito por *sql.DB e *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const productColumns = `id, sku, name, description, price, cost, min_stock,
        stock_loja, stock_armazem, stock, version, is_active, created_at, updated_at`

const movementColumns = `id, product_id, type, quantity, reason, reference, user_id,
        location, from_location, to_location, created_at`

const saleColumns = `id, sale_number, status, subtotal, discount, delivery_fee, total,
        payment_method, payment_reference, gateway, pix_code, qr_code_base64, payment_url,
        gateway_response, lead_id, notes, user_id, created_at, updated_at`

const saleItemColumns = `id, sale_id, product_id, quantity, unit_price, total, location`

const leadColumns = `id, name, phone, email, created_at, updated_at`

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Cost, &p.MinStock,
		&p.StockLoja, &p.StockArmazem, &p.Stock, &p.Version, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func scanMovement(row scanner) (domain.StockMovement, error) {
	var (
		mv                     domain.StockMovement
		ref, user              sql.NullString
		location, from, target sql.NullString
	)
	err := row.Scan(&mv.ID, &mv.ProductID, &mv.Type, &mv.Quantity, &mv.Reason, &ref, &user,
		&location, &from, &target, &mv.CreatedAt)
	mv.Reference = ref.String
	mv.UserID = user.String
	mv.Location = domain.Location(location.String)
	mv.FromLocation = domain.Location(from.String)
	mv.ToLocation = domain.Location(target.String)
	return mv, err
}

func scanSale(row scanner) (domain.Sale, error) {
	var (
		s                                   domain.Sale
		paymentRef, gateway, pix, qr, url   sql.NullString
		leadID, notes, userID               sql.NullString
		gatewayResponse                     []byte
	)
	err := row.Scan(
		&s.ID, &s.SaleNumber, &s.Status, &s.Subtotal, &s.Discount, &s.DeliveryFee, &s.Total,
		&s.PaymentMethod, &paymentRef, &gateway, &pix, &qr, &url,
		&gatewayResponse, &leadID, &notes, &userID, &s.CreatedAt, &s.UpdatedAt,
	)
	s.PaymentReference = paymentRef.String
	s.Gateway = gateway.String
	s.PixCode = pix.String
	s.QRCodeBase64 = qr.String
	s.PaymentURL = url.String
	if len(gatewayResponse) > 0 {
		s.GatewayResponse = gatewayResponse
	}
	s.LeadID = leadID.String
	s.Notes = notes.String
	s.UserID = userID.String
	return s, err
}

func scanLead(row scanner) (domain.Lead, error) {
	var (
		l     domain.Lead
		email sql.NullString
	)
	err := row.Scan(&l.ID, &l.Name, &l.Phone, &email, &l.CreatedAt, &l.UpdatedAt)
	l.Email = email.String
	return l, err
}

// loadItems carrega os itens das vendas informadas, agrupados por venda.
func loadItems(ctx context.Context, q querier, saleIDs ...string) (map[string][]domain.SaleItem, error) {
	out := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, product_id`,
		pq.Array(saleIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Total, &it.Location); err != nil {
			return nil, err
		}
		out[it.SaleID] = append(out[it.SaleID], it)
	}
	return out, rows.Err()
}

// nullString grava strings vazias como NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullJSON grava payloads vazios como NULL; o resto vai como texto para a coluna JSONB.
func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// validUUID evita um erro de sintaxe do Postgres para ids que nunca existiriam.
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// isUniqueViolation reconhece o código 23505 do PostgreSQL.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
