package inventoryservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
)

// Ledger grava entradas no ledger de estoque dentro da transação do chamador.
// É o único ponto do código que chama Tx.ApplyStockMovement.
type Ledger struct {
	logger logger.Logger
	now    func() time.Time
}

// NewLedger cria o Ledger.
func NewLedger(log logger.Logger) *Ledger {
	return &Ledger{logger: log, now: func() time.Time { return time.Now().UTC() }}
}

// Append valida o movimento, bloqueia o produto, grava a entrada e os novos contadores.
// A entrada do ledger é escrita antes da atualização dos contadores.
func (l *Ledger) Append(ctx context.Context, tx domain.Tx, in domain.StockMovementInput) (domain.Product, domain.StockMovement, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := in.Validate(); err != nil {
		return domain.Product{}, domain.StockMovement{}, err
	}

	product, err := tx.LockProduct(ctx, in.ProductID)
	if err != nil {
		return domain.Product{}, domain.StockMovement{}, err
	}

	next, err := product.Counters().Apply(product.ID, in)
	if err != nil {
		l.logger.Warn("Movimento recusado por estoque insuficiente.", map[string]interface{}{
			"product_id": product.ID,
			"type":       in.Type,
			"quantity":   in.Quantity,
			"stock_loja": product.StockLoja,
			"stock_arm":  product.StockArmazem,
		})
		return domain.Product{}, domain.StockMovement{}, err
	}

	mv := domain.StockMovement{
		ID:           uuid.NewString(),
		ProductID:    product.ID,
		Type:         in.Type,
		Quantity:     in.Quantity,
		Reason:       in.Reason,
		Reference:    in.Reference,
		UserID:       in.UserID,
		Location:     in.Location,
		FromLocation: in.FromLocation,
		ToLocation:   in.ToLocation,
		CreatedAt:    l.now(),
	}
	if err := tx.ApplyStockMovement(ctx, mv, next, product.Version); err != nil {
		return domain.Product{}, domain.StockMovement{}, err
	}

	product = product.WithCounters(next)
	product.Version++
	product.UpdatedAt = mv.CreatedAt

	l.logger.Debug("Movimento de estoque registrado.", map[string]interface{}{
		"product_id":    product.ID,
		"movement_id":   mv.ID,
		"type":          mv.Type,
		"quantity":      mv.Quantity,
		"stock_loja":    product.StockLoja,
		"stock_armazem": product.StockArmazem,
	})
	return product, mv, nil
}

// ConsumeForSale baixa estoque de uma venda. A localização é obrigatória aqui;
// o padrão LOJA é aplicado na borda da API.
func (l *Ledger) ConsumeForSale(ctx context.Context, tx domain.Tx, productID string, quantity int, loc domain.Location, saleID, userID string) (domain.Product, error) {
	p, _, err := l.Append(ctx, tx, domain.StockMovementInput{
		ProductID: productID,
		Type:      domain.MovementSale,
		Quantity:  -quantity,
		Reason:    fmt.Sprintf("Venda %s", saleID),
		Reference: saleID,
		UserID:    userID,
		Location:  loc,
	})
	return p, err
}

// ReturnFromSale devolve ao estoque unidades consumidas por uma venda.
func (l *Ledger) ReturnFromSale(ctx context.Context, tx domain.Tx, productID string, quantity int, loc domain.Location, saleID, userID, reason string) (domain.Product, error) {
	p, _, err := l.Append(ctx, tx, domain.StockMovementInput{
		ProductID: productID,
		Type:      domain.MovementReturn,
		Quantity:  quantity,
		Reason:    reason,
		Reference: saleID,
		UserID:    userID,
		Location:  loc,
	})
	return p, err
}

// ReverseSale devolve apenas o consumo ainda pendente da venda, calculado pelo próprio ledger.
// Chamadas repetidas não geram devolução em dobro.
func (l *Ledger) ReverseSale(ctx context.Context, tx domain.Tx, saleID, userID, reason string) ([]domain.StockBalance, error) {
	outstanding, err := OutstandingConsumption(ctx, tx, saleID)
	if err != nil {
		return nil, err
	}
	for _, b := range outstanding {
		if _, err := l.ReturnFromSale(ctx, tx, b.ProductID, b.Quantity, b.Location, saleID, userID, reason); err != nil {
			return nil, err
		}
	}
	return outstanding, nil
}

// OutstandingConsumption lista, por produto e localização, as unidades consumidas pela venda
// que ainda não voltaram ao estoque.
func OutstandingConsumption(ctx context.Context, tx domain.Tx, saleID string) ([]domain.StockBalance, error) {
	balances, err := tx.NetStockByReference(ctx, saleID)
	if err != nil {
		return nil, err
	}
	var out []domain.StockBalance
	for _, b := range balances {
		if b.Quantity < 0 {
			out = append(out, domain.StockBalance{ProductID: b.ProductID, Location: b.Location, Quantity: -b.Quantity})
		}
	}
	return out, nil
}
