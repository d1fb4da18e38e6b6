// Package memrepo mantém todo o estado em memória. É usado em desenvolvimento
// (quando DATABASE_URL não está definida) e nos testes de serviço.
//
// Transações são serializadas por um mutex global e trabalham sobre uma cópia do estado,
// publicada apenas no Commit. Isso dá as mesmas garantias de atomicidade e de
// ausência de lost update que o FOR UPDATE dá no PostgreSQL.
package memrepo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

var errTxDone = errors.New("memrepo: transação já finalizada")

type state struct {
	products  map[string]domain.Product
	movements []domain.StockMovement
	sales     map[string]domain.Sale
	leads     map[string]domain.Lead
}

func newState() *state {
	return &state{
		products: map[string]domain.Product{},
		sales:    map[string]domain.Sale{},
		leads:    map[string]domain.Lead{},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  make(map[string]domain.Product, len(s.products)),
		movements: make([]domain.StockMovement, len(s.movements)),
		sales:     make(map[string]domain.Sale, len(s.sales)),
		leads:     make(map[string]domain.Lead, len(s.leads)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	copy(c.movements, s.movements)
	for k, v := range s.sales {
		c.sales[k] = copySale(v)
	}
	for k, v := range s.leads {
		c.leads[k] = v
	}
	return c
}

func copySale(s domain.Sale) domain.Sale {
	if s.Items != nil {
		items := make([]domain.SaleItem, len(s.Items))
		copy(items, s.Items)
		s.Items = items
	}
	if s.GatewayResponse != nil {
		raw := make([]byte, len(s.GatewayResponse))
		copy(raw, s.GatewayResponse)
		s.GatewayResponse = raw
	}
	return s
}

// Store é a implementação em memória de domain.TxBeginner e dos repositórios de leitura.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state

	saleSeq int64
	seqMu   sync.Mutex

	logMu sync.Mutex
	logs  []domain.WebhookLog

	userMu sync.RWMutex
	users  map[string]domain.User

	// FailWebhookLog força erro na gravação da auditoria (usado em testes).
	FailWebhookLog error
}

// NewStore cria um Store vazio.
func NewStore() *Store {
	return &Store{st: newState(), users: map[string]domain.User{}}
}

// BeginTx abre uma transação serializada.
func (s *Store) BeginTx(ctx context.Context) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.NewDBError("Falha ao iniciar transação", err)
	}
	s.txMu.Lock()
	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()
	return &tx{store: s, st: snapshot}, nil
}

// FindProduct busca um produto sem bloqueio.
func (s *Store) FindProduct(ctx context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.products[id]
	if !ok {
		return domain.Product{}, apperror.NewProductNotFoundError(id)
	}
	return p, nil
}

// ListProducts lista produtos ativos por nome.
func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(strings.TrimSpace(filter.Name))
	var all []domain.Product
	for _, p := range s.st.products {
		if !p.IsActive {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(p.Name), name) {
			continue
		}
		if filter.LowStockOnly && !p.LowStock() {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return paginate(all, filter.Page, filter.Limit), len(all), nil
}

// ListMovements retorna o histórico do produto do mais recente para o mais antigo.
func (s *Store) ListMovements(ctx context.Context, productID string, page, limit int) ([]domain.StockMovement, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.StockMovement
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		if s.st.movements[i].ProductID == productID {
			all = append(all, s.st.movements[i])
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page, limit), len(all), nil
}

// FindSale busca uma venda sem bloqueio.
func (s *Store) FindSale(ctx context.Context, id string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.st.sales[id]
	if !ok {
		return domain.Sale{}, apperror.NewSaleNotFoundError(id)
	}
	return copySale(sale), nil
}

// ListSales lista vendas da mais recente para a mais antiga.
func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.Sale
	for _, sale := range s.st.sales {
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		all = append(all, copySale(sale))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].SaleNumber > all[j].SaleNumber
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, filter.Page, filter.Limit), len(all), nil
}

// InsertWebhookLog grava a auditoria imediatamente, fora de qualquer transação.
func (s *Store) InsertWebhookLog(ctx context.Context, log domain.WebhookLog) (domain.WebhookLog, error) {
	if s.FailWebhookLog != nil {
		return domain.WebhookLog{}, apperror.NewDBError("Falha ao gravar webhook", s.FailWebhookLog)
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.logs = append(s.logs, log)
	return log, nil
}

// MarkWebhookLog atualiza o resultado do processamento.
func (s *Store) MarkWebhookLog(ctx context.Context, id string, processed bool, errMsg string) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	for i := range s.logs {
		if s.logs[i].ID == id {
			s.logs[i].Processed = processed
			s.logs[i].Error = errMsg
			if processed {
				now := time.Now().UTC()
				s.logs[i].ProcessedAt = &now
			}
			return nil
		}
	}
	return apperror.NewNotFoundError("webhook log " + id)
}

// WebhookLogs devolve uma cópia da trilha de auditoria.
func (s *Store) WebhookLogs() []domain.WebhookLog {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	out := make([]domain.WebhookLog, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *Store) nextSaleNumber() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.saleSeq++
	return s.saleSeq
}

func paginate[T any](items []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return items
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
