package settlementservice_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	"goloja/internal/pkg/chatwoot"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/payment"
	"goloja/internal/repository/memrepo"
	"goloja/internal/service/inventoryservice"
	"goloja/internal/service/saleservice"
	"goloja/internal/service/settlementservice"
)

type fixture struct {
	settlement *settlementservice.Service
	sales      *saleservice.Service
	store      *memrepo.Store
	ledger     *inventoryservice.Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := logger.NewLogger("error")
	store := memrepo.NewStore()
	ledger := inventoryservice.NewLedger(log)
	cfg, err := payment.NewConfig(payment.NameMock, "", payment.NewMock(log), payment.NewAsaas("key", "", 0, log))
	require.NoError(t, err)
	sales := saleservice.NewService(store, ledger, cfg, nil, "VND", log)
	return fixture{
		settlement: settlementservice.NewService(store, sales, cfg, log),
		sales:      sales,
		store:      store,
		ledger:     ledger,
	}
}

func (f fixture) seedProduct(t *testing.T, loja int) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertProduct(ctx, domain.Product{ID: id, SKU: id, Name: "Produto", Price: decimal.NewFromInt(10), Version: 1, IsActive: true}))
	_, _, err = f.ledger.Append(ctx, tx, domain.StockMovementInput{
		ProductID: id, Type: domain.MovementEntry, Quantity: loja, Reason: "estoque inicial", Location: domain.LocationLoja,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func (f fixture) checkout(t *testing.T, pid string, qty int, method string) domain.Sale {
	t.Helper()
	sale, err := f.sales.Checkout(context.Background(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: pid, Quantity: qty}}, PaymentMethod: method,
	})
	require.NoError(t, err)
	return sale
}

func (f fixture) stockLoja(t *testing.T, pid string) int {
	t.Helper()
	p, err := f.store.FindProduct(context.Background(), pid)
	require.NoError(t, err)
	return p.StockLoja
}

func (f fixture) count(t *testing.T, pid string, typ domain.MovementType) int {
	t.Helper()
	all, _, err := f.store.ListMovements(context.Background(), pid, 1, 0)
	require.NoError(t, err)
	n := 0
	for _, mv := range all {
		if mv.Type == typ {
			n++
		}
	}
	return n
}

func mockWebhook(status, externalRef, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"event":"payment.updated","id":%q,"status":%q,"external_reference":%q}`, paymentID, status, externalRef))
}

func TestScenario_SaleApprovedThenDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, 10)

	sale := f.checkout(t, pid, 3, "PIX_GATEWAY")
	assert.Equal(t, domain.SaleStatusPending, sale.Status)
	assert.Equal(t, 7, f.stockLoja(t, pid))

	res, err := f.settlement.ApplyWebhook(ctx, "mock", mockWebhook("approved", sale.ID, ""))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.SaleStatusPending, res.PreviousStatus)
	assert.Equal(t, domain.SaleStatusPaid, res.Status)
	assert.Equal(t, 7, f.stockLoja(t, pid))

	stored, err := f.store.FindSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(mockWebhook("approved", sale.ID, "")), string(stored.GatewayResponse))

	require.NoError(t, f.sales.DeleteSale(ctx, sale.ID, domain.SaleAction{UserID: "admin", IsAdmin: true}))
	assert.Equal(t, 10, f.stockLoja(t, pid))
	assert.Equal(t, 1, f.count(t, pid, domain.MovementReturn))
}

func TestApplyWebhook_DuplicateApprovedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, 5)
	sale := f.checkout(t, pid, 1, "PIX_GATEWAY")
	payload := mockWebhook("approved", sale.ID, "")

	first, err := f.settlement.ApplyWebhook(ctx, "mock", payload)
	require.NoError(t, err)
	second, err := f.settlement.ApplyWebhook(ctx, "mock", payload)
	require.NoError(t, err)

	assert.True(t, first.Applied)
	require.NotNil(t, second)
	assert.False(t, second.Applied)
	assert.Equal(t, domain.SaleStatusPaid, second.Status)
	assert.Equal(t, 1, f.count(t, pid, domain.MovementSale))
	assert.Zero(t, f.count(t, pid, domain.MovementReturn))

	logs := f.store.WebhookLogs()
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.True(t, l.Processed)
		assert.NotNil(t, l.ProcessedAt)
	}
}

func TestApplyWebhook_RejectedReversesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, 5)
	sale := f.checkout(t, pid, 2, "PIX_GATEWAY")
	payload := mockWebhook("rejected", sale.ID, "")

	res, err := f.settlement.ApplyWebhook(ctx, "mock", payload)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, res.Status)
	assert.Equal(t, 5, f.stockLoja(t, pid))

	res, err = f.settlement.ApplyWebhook(ctx, "mock", payload)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 5, f.stockLoja(t, pid))
	assert.Equal(t, 1, f.count(t, pid, domain.MovementReturn))
}

func TestApplyWebhook_MatchesByPaymentReference(t *testing.T) {
	f := newFixture(t)
	pid := f.seedProduct(t, 5)
	sale := f.checkout(t, pid, 1, "PIX_GATEWAY")
	require.NotEmpty(t, sale.PaymentReference)

	res, err := f.settlement.ApplyWebhook(context.Background(), "mock", mockWebhook("approved", "", sale.PaymentReference))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, sale.ID, res.SaleID)
	assert.Equal(t, domain.SaleStatusPaid, res.Status)
}

func TestApplyWebhook_UnmatchedReturnsNil(t *testing.T) {
	f := newFixture(t)

	res, err := f.settlement.ApplyWebhook(context.Background(), "mock", mockWebhook("approved", uuid.NewString(), "pay-x"))

	assert.NoError(t, err)
	assert.Nil(t, res)
	logs := f.store.WebhookLogs()
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Processed)
	assert.Contains(t, logs[0].Error, "nenhuma venda")
	assert.Equal(t, "payment.updated", logs[0].Event)
}

func TestApplyWebhook_PaidIgnoresCancelledWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, 5)
	sale := f.checkout(t, pid, 2, "PIX_GATEWAY")
	_, err := f.settlement.ApplyWebhook(ctx, "mock", mockWebhook("approved", sale.ID, ""))
	require.NoError(t, err)

	res, err := f.settlement.ApplyWebhook(ctx, "mock", mockWebhook("cancelled", sale.ID, ""))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Applied)
	assert.Equal(t, domain.SaleStatusPaid, res.Status)
	assert.Equal(t, 3, f.stockLoja(t, pid))
}

func TestApplyWebhook_AsaasPayload(t *testing.T) {
	f := newFixture(t)
	pid := f.seedProduct(t, 5)
	sale := f.checkout(t, pid, 1, "PIX_GATEWAY")

	payload := []byte(fmt.Sprintf(`{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_9","status":"CONFIRMED","value":10,"externalReference":%q}}`, sale.ID))
	res, err := f.settlement.ApplyWebhook(context.Background(), "asaas", payload)

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.SaleStatusPaid, res.Status)
	assert.Equal(t, "PAYMENT_CONFIRMED", f.store.WebhookLogs()[0].Event)
}

func TestApplyWebhook_AuditFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.store.FailWebhookLog = errors.New("disco cheio")

	res, err := f.settlement.ApplyWebhook(context.Background(), "mock", mockWebhook("approved", "x", ""))

	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestApplyWebhook_OversizedFieldsStillAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, 5)
	sale := f.checkout(t, pid, 1, "PIX_GATEWAY")

	longEvent := strings.Repeat("ação", 30)
	payload := fmt.Sprintf(`{"event":%q,"status":"approved","external_reference":%q}`, longEvent, sale.ID)
	res, err := f.settlement.ApplyWebhook(ctx, "mock", []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.SaleStatusPaid, res.Status)

	res, err = f.settlement.ApplyWebhook(ctx, strings.Repeat("g", 100), []byte(`{}`))
	assert.NoError(t, err)
	assert.Nil(t, res)

	logs := f.store.WebhookLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, 64, utf8.RuneCountInString(logs[0].Event))
	assert.Equal(t, strings.Repeat("ação", 16), logs[0].Event)
	assert.True(t, logs[0].Processed)
	assert.Equal(t, strings.Repeat("g", 32), logs[1].Source)
	assert.False(t, logs[1].Processed)
}

func TestApplyWebhook_UnknownGatewayAndInvalidPayload(t *testing.T) {
	f := newFixture(t)

	res, err := f.settlement.ApplyWebhook(context.Background(), "pagseguro", []byte(`{}`))
	assert.NoError(t, err)
	assert.Nil(t, res)

	res, err = f.settlement.ApplyWebhook(context.Background(), "mock", []byte(`status=approved`))
	assert.NoError(t, err)
	assert.Nil(t, res)

	logs := f.store.WebhookLogs()
	require.Len(t, logs, 2)
	assert.Contains(t, logs[0].Error, "não configurado")
	assert.JSONEq(t, `"status=approved"`, string(logs[1].Data))
	assert.False(t, logs[1].Processed)
}

func TestRecordExternalEvent(t *testing.T) {
	f := newFixture(t)
	src := chatwoot.NewSource()

	events, err := f.settlement.RecordExternalEvent(context.Background(), src,
		[]byte(`{"event":"contact_created","id":7,"name":"Ana","phone_number":"+5511999990000"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Ana", events[0].Name)

	events, err = f.settlement.RecordExternalEvent(context.Background(), src, []byte(`{`))
	assert.NoError(t, err)
	assert.Nil(t, events)

	logs := f.store.WebhookLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, chatwoot.SourceName, logs[0].Source)
	assert.True(t, logs[0].Processed)
	assert.False(t, logs[1].Processed)
}
