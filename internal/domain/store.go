package domain

import "context"

// StockBalance é a soma líquida de movimentos de um produto em uma localização.
type StockBalance struct {
	ProductID string
	Location  Location
	Quantity  int
}

// Tx é a unidade de trabalho transacional. Leituras "Lock*" bloqueiam a linha até Commit/Rollback.
//
// ApplyStockMovement é o único caminho que altera contadores de estoque: grava a entrada do
// ledger e os novos contadores juntos, conferindo a versão do produto.
type Tx interface {
	Commit() error
	Rollback() error

	InsertProduct(ctx context.Context, p Product) error
	LockProduct(ctx context.Context, id string) (Product, error)
	ApplyStockMovement(ctx context.Context, mv StockMovement, next StockCounters, expectedVersion int) error
	// NetStockByReference soma os movimentos SALE e RETURN que referenciam ref.
	NetStockByReference(ctx context.Context, ref string) ([]StockBalance, error)

	NextSaleNumber(ctx context.Context) (int64, error)
	InsertSale(ctx context.Context, sale Sale) error
	LockSale(ctx context.Context, id string) (Sale, error)
	// LockSaleByPayment procura por id da venda (externalReference) e depois por paymentReference.
	LockSaleByPayment(ctx context.Context, externalReference, paymentReference string) (Sale, error)
	UpdateSale(ctx context.Context, sale Sale) error
	DeleteSale(ctx context.Context, id string) error

	FindLead(ctx context.Context, id string) (Lead, error)
	FindOrCreateLead(ctx context.Context, lead Lead) (Lead, error)
}

// TxBeginner abre transações.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// WebhookLogRepository grava a trilha de auditoria fora das transações de negócio.
type WebhookLogRepository interface {
	InsertWebhookLog(ctx context.Context, log WebhookLog) (WebhookLog, error)
	MarkWebhookLog(ctx context.Context, id string, processed bool, errMsg string) error
}
