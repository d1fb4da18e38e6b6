package memrepo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

type tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *tx) finish() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.store.mu.Lock()
	t.store.st = t.st
	t.store.mu.Unlock()
	return t.finish()
}

func (t *tx) Rollback() error {
	return t.finish()
}

func (t *tx) InsertProduct(ctx context.Context, p domain.Product) error {
	for _, existing := range t.st.products {
		if existing.SKU == p.SKU {
			return apperror.NewConflictError(fmt.Sprintf("SKU '%s' já cadastrado.", p.SKU))
		}
	}
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) LockProduct(ctx context.Context, id string) (domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return domain.Product{}, apperror.NewProductNotFoundError(id)
	}
	return p, nil
}

func (t *tx) ApplyStockMovement(ctx context.Context, mv domain.StockMovement, next domain.StockCounters, expectedVersion int) error {
	p, ok := t.st.products[mv.ProductID]
	if !ok {
		return apperror.NewProductNotFoundError(mv.ProductID)
	}
	if p.Version != expectedVersion {
		return apperror.NewConflictError("O estoque foi modificado por outra operação. Tente novamente.")
	}
	t.st.movements = append(t.st.movements, mv)
	p = p.WithCounters(next)
	p.Version++
	p.UpdatedAt = mv.CreatedAt
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) NetStockByReference(ctx context.Context, ref string) ([]domain.StockBalance, error) {
	type key struct {
		product  string
		location domain.Location
	}
	sums := map[key]int{}
	for _, mv := range t.st.movements {
		if mv.Reference != ref || (mv.Type != domain.MovementSale && mv.Type != domain.MovementReturn) {
			continue
		}
		sums[key{mv.ProductID, mv.Location}] += mv.Quantity
	}
	out := make([]domain.StockBalance, 0, len(sums))
	for k, q := range sums {
		out = append(out, domain.StockBalance{ProductID: k.product, Location: k.location, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID == out[j].ProductID {
			return out[i].Location < out[j].Location
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

// NextSaleNumber fica fora do snapshot: como uma sequence, não volta atrás no rollback.
func (t *tx) NextSaleNumber(ctx context.Context) (int64, error) {
	return t.store.nextSaleNumber(), nil
}

func (t *tx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if _, exists := t.st.sales[sale.ID]; exists {
		return apperror.NewConflictError(fmt.Sprintf("Venda %s já existe.", sale.ID))
	}
	for _, other := range t.st.sales {
		if other.SaleNumber == sale.SaleNumber {
			return apperror.NewConflictError(fmt.Sprintf("Número de venda %s duplicado.", sale.SaleNumber))
		}
	}
	t.st.sales[sale.ID] = copySale(sale)
	return nil
}

func (t *tx) LockSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, ok := t.st.sales[id]
	if !ok {
		return domain.Sale{}, apperror.NewSaleNotFoundError(id)
	}
	return copySale(sale), nil
}

func (t *tx) LockSaleByPayment(ctx context.Context, externalReference, paymentReference string) (domain.Sale, error) {
	if externalReference != "" {
		if sale, ok := t.st.sales[externalReference]; ok {
			return copySale(sale), nil
		}
	}
	if paymentReference != "" {
		for _, sale := range t.st.sales {
			if sale.PaymentReference == paymentReference {
				return copySale(sale), nil
			}
		}
	}
	return domain.Sale{}, apperror.NewSaleNotFoundError(externalReference + paymentReference)
}

func (t *tx) UpdateSale(ctx context.Context, sale domain.Sale) error {
	if _, ok := t.st.sales[sale.ID]; !ok {
		return apperror.NewSaleNotFoundError(sale.ID)
	}
	t.st.sales[sale.ID] = copySale(sale)
	return nil
}

func (t *tx) DeleteSale(ctx context.Context, id string) error {
	if _, ok := t.st.sales[id]; !ok {
		return apperror.NewSaleNotFoundError(id)
	}
	delete(t.st.sales, id)
	return nil
}

func (t *tx) FindLead(ctx context.Context, id string) (domain.Lead, error) {
	lead, ok := t.st.leads[id]
	if !ok {
		return domain.Lead{}, &apperror.NotFoundError{Msg: fmt.Sprintf("Lead com ID %s não existe.", id), Resource: "LEAD"}
	}
	return lead, nil
}

func (t *tx) FindOrCreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	for _, existing := range t.st.leads {
		if existing.Phone == lead.Phone {
			return existing, nil
		}
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now
	t.st.leads[lead.ID] = lead
	return lead, nil
}
