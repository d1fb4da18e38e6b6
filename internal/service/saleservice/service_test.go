package saleservice_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/payment"
	"goloja/internal/repository/memrepo"
	"goloja/internal/service/inventoryservice"
	"goloja/internal/service/saleservice"
)

// MockGateway é um gateway controlado pelo teste.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "fake" }

func (m *MockGateway) CreatePixPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.PaymentResponse), args.Error(1)
}

func (m *MockGateway) NormalizeWebhook(ctx context.Context, raw []byte) (domain.NormalizedWebhook, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(domain.NormalizedWebhook), args.Error(1)
}

type fixture struct {
	svc    *saleservice.Service
	store  *memrepo.Store
	ledger *inventoryservice.Ledger
}

func newFixture(t *testing.T, gateways ...payment.Gateway) fixture {
	t.Helper()
	log := logger.NewLogger("error")
	store := memrepo.NewStore()
	ledger := inventoryservice.NewLedger(log)

	var cfg *payment.Config
	if len(gateways) > 0 {
		var err error
		cfg, err = payment.NewConfig(gateways[0].Name(), "https://loja.example.com", gateways...)
		require.NoError(t, err)
	}
	return fixture{
		svc:    saleservice.NewService(store, ledger, cfg, nil, "", log),
		store:  store,
		ledger: ledger,
	}
}

func (f fixture) seedProduct(t *testing.T, price string, loja, armazem int) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertProduct(ctx, domain.Product{
		ID: id, SKU: "SKU-" + id[:8], Name: "Produto " + id[:4], Price: decimal.RequireFromString(price), Version: 1, IsActive: true,
	}))
	for loc, qty := range map[domain.Location]int{domain.LocationLoja: loja, domain.LocationArmazem: armazem} {
		if qty == 0 {
			continue
		}
		_, _, err := f.ledger.Append(ctx, tx, domain.StockMovementInput{
			ProductID: id, Type: domain.MovementEntry, Quantity: qty, Reason: "estoque inicial", Location: loc,
		})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	return id
}

func (f fixture) product(t *testing.T, id string) domain.Product {
	t.Helper()
	p, err := f.store.FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f fixture) movements(t *testing.T, productID string, typ domain.MovementType) []domain.StockMovement {
	t.Helper()
	all, _, err := f.store.ListMovements(context.Background(), productID, 1, 0)
	require.NoError(t, err)
	var out []domain.StockMovement
	for _, mv := range all {
		if mv.Type == typ {
			out = append(out, mv)
		}
	}
	return out
}

var admin = domain.SaleAction{UserID: "admin-1", IsAdmin: true}

func TestCheckout_CashSaleThenDeleteRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, "10.00", 10, 0)

	sale, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		Items:         []domain.CheckoutItem{{ProductID: pid, Quantity: 3}},
		PaymentMethod: "CASH",
		UserID:        "seller-1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SaleStatusPaid, sale.Status)
	assert.Equal(t, 7, f.product(t, pid).StockLoja)
	sales := f.movements(t, pid, domain.MovementSale)
	require.Len(t, sales, 1)
	assert.Equal(t, -3, sales[0].Quantity)
	assert.Equal(t, sale.ID, sales[0].Reference)
	assert.Equal(t, domain.LocationLoja, sales[0].Location)

	require.NoError(t, f.svc.DeleteSale(ctx, sale.ID, admin))

	assert.Equal(t, 10, f.product(t, pid).StockLoja)
	returns := f.movements(t, pid, domain.MovementReturn)
	require.Len(t, returns, 1)
	assert.Equal(t, 3, returns[0].Quantity)

	_, err = f.svc.GetSale(ctx, sale.ID)
	var notFound *apperror.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCheckout_TotalsAndPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	a := f.seedProduct(t, "19.90", 5, 0)
	b := f.seedProduct(t, "5.05", 5, 0)

	sale, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items:         []domain.CheckoutItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 1}, {ProductID: a, Quantity: 1}},
		PaymentMethod: "pix",
		Discount:      decimal.RequireFromString("4.75"),
		DeliveryFee:   decimal.RequireFromString("10"),
	})
	require.NoError(t, err)

	require.Len(t, sale.Items, 2)
	for _, it := range sale.Items {
		if it.ProductID == a {
			assert.Equal(t, 3, it.Quantity)
			assert.True(t, it.UnitPrice.Equal(decimal.RequireFromString("19.90")))
			assert.True(t, it.Total.Equal(decimal.RequireFromString("59.70")))
		}
	}
	assert.Equal(t, "64.75", sale.Subtotal.StringFixed(2))
	assert.Equal(t, "70.00", sale.Total.StringFixed(2))

	stored, err := f.svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.Total.String(), stored.Total.String())
	assert.Equal(t, 2, f.product(t, a).StockLoja)
}

func TestCheckout_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ok := f.seedProduct(t, "1", 10, 0)
	short := f.seedProduct(t, "1", 2, 0)

	_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items:         []domain.CheckoutItem{{ProductID: ok, Quantity: 4}, {ProductID: short, Quantity: 5}},
		PaymentMethod: "CASH",
	})

	var insufficient *apperror.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 5, insufficient.Requested)
	assert.Contains(t, err.Error(), "Estoque insuficiente em LOJA: disponível 2, solicitado 5")

	assert.Equal(t, 10, f.product(t, ok).StockLoja)
	assert.Empty(t, f.movements(t, ok, domain.MovementSale))
	page, err := f.svc.ListSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCheckout_UsesRequestedLocation(t *testing.T) {
	f := newFixture(t)
	pid := f.seedProduct(t, "1", 0, 4)

	_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH",
	})
	var insufficient *apperror.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	sale, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH", Location: "armazem",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LocationArmazem, sale.Items[0].Location)
	assert.Equal(t, 3, f.product(t, pid).StockArmazem)
}

func TestCheckout_Validation(t *testing.T) {
	f := newFixture(t)
	pid := f.seedProduct(t, "10", 5, 0)

	tests := []struct {
		name     string
		req      domain.CheckoutRequest
		category string
	}{
		{"método inválido", domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "BOLETO"}, "INVALID_PAYMENT_METHOD"},
		{"gateway não configurado", domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "PIX_GATEWAY"}, "INVALID_PAYMENT_METHOD"},
		{"sem itens", domain.CheckoutRequest{PaymentMethod: "CASH"}, "VALIDATION_ERROR"},
		{"quantidade zero", domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid}}, PaymentMethod: "CASH"}, "VALIDATION_ERROR"},
		{"produto inexistente", domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: uuid.NewString(), Quantity: 1}}, PaymentMethod: "CASH"}, "PRODUCT_NOT_FOUND"},
		{"localização inválida", domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH", Location: "GALPAO"}, "INVALID_LOCATION"},
		{"desconto maior que subtotal", domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH", Discount: decimal.NewFromInt(11)}, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout(context.Background(), tt.req)
			require.Error(t, err)
			_, category, _ := apperror.MapToHTTPStatus(err)
			assert.Equal(t, tt.category, category)
		})
	}
	assert.Equal(t, 5, f.product(t, pid).StockLoja)
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	pid := f.seedProduct(t, "99.90", 1, 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(context.Background(), domain.CheckoutRequest{
				Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH",
			})
		}(i)
	}
	wg.Wait()

	success, insufficient := 0, 0
	for _, err := range errs {
		var ise *apperror.InsufficientStockError
		switch {
		case err == nil:
			success++
		case errors.As(err, &ise):
			insufficient++
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, insufficient)
	assert.Equal(t, 0, f.product(t, pid).StockLoja)
	assert.Len(t, f.movements(t, pid, domain.MovementSale), 1)
}

func TestCheckout_SaleNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	pid := f.seedProduct(t, "1", 100, 0)

	const n = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	numbers := map[string]bool{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
				Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH",
			})
			if assert.NoError(t, err) {
				mu.Lock()
				numbers[sale.SaleNumber] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
	format := regexp.MustCompile(`^VND-\d{6}$`)
	for number := range numbers {
		assert.Regexp(t, format, number)
	}
}

func TestCheckout_LeadByPhoneIsReused(t *testing.T) {
	f := newFixture(t)
	pid := f.seedProduct(t, "1", 10, 0)
	req := domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH",
		LeadName: "Maria", LeadPhone: "11999990000",
	}

	first, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, first.LeadID)
	assert.Equal(t, first.LeadID, second.LeadID)

	_, err = f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH", LeadID: uuid.NewString(),
	})
	_, category, _ := apperror.MapToHTTPStatus(err)
	assert.Equal(t, "LEAD_NOT_FOUND", category)
}

func TestCheckout_PixGatewayCreatesPendingCharge(t *testing.T) {
	gw := new(MockGateway)
	f := newFixture(t, gw)
	pid := f.seedProduct(t, "25", 3, 0)

	gw.On("CreatePixPayment", mock.Anything, mock.MatchedBy(func(req domain.PaymentRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(50)) &&
			req.NotificationURL == "https://loja.example.com/v1/webhooks/payments/fake"
	})).Return(domain.PaymentResponse{
		ID: "pay-1", Status: "pending", PixCode: "000201", QRCodeBase64: "aW1n", Gateway: "fake", Raw: []byte(`{"id":"pay-1"}`),
	}, nil).Once()

	sale, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 2}}, PaymentMethod: "PIX_GATEWAY", LeadPhone: "11911112222",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SaleStatusPending, sale.Status)
	assert.Equal(t, "pay-1", sale.PaymentReference)
	assert.Equal(t, "000201", sale.PixCode)

	stored, err := f.svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", stored.PaymentReference)
	assert.Equal(t, "fake", stored.Gateway)
	assert.Equal(t, 1, f.product(t, pid).StockLoja)
	gw.AssertExpectations(t)
}

func TestCheckout_GatewayFailureCompensates(t *testing.T) {
	gw := new(MockGateway)
	f := newFixture(t, gw)
	pid := f.seedProduct(t, "25", 3, 0)
	gw.On("CreatePixPayment", mock.Anything, mock.Anything).
		Return(domain.PaymentResponse{}, fmt.Errorf("timeout")).Once()

	_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 2}}, PaymentMethod: "PIX_GATEWAY",
	})

	var gwErr *apperror.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "fake", gwErr.Gateway)
	assert.Equal(t, 3, f.product(t, pid).StockLoja)
	assert.Len(t, f.movements(t, pid, domain.MovementReturn), 1)

	page, err := f.svc.ListSales(context.Background(), domain.SaleFilter{Status: domain.SaleStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCancel_PaidRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, "10", 5, 0)
	sale, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 2}}, PaymentMethod: "CASH"})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, sale.ID, domain.SaleAction{UserID: "seller-1"})
	var forbidden *apperror.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, 3, f.product(t, pid).StockLoja)

	cancelled, err := f.svc.Cancel(ctx, sale.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.product(t, pid).StockLoja)

	_, err = f.svc.Cancel(ctx, sale.ID, admin)
	var invalid *apperror.InvalidStateTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestRefund(t *testing.T) {
	f := newFixture(t, payment.NewMock(logger.NewLogger("error")))
	ctx := context.Background()
	pid := f.seedProduct(t, "10", 5, 0)

	paid, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "DEBIT_CARD"})
	require.NoError(t, err)
	refunded, err := f.svc.Refund(ctx, paid.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusRefunded, refunded.Status)
	assert.Equal(t, 5, f.product(t, pid).StockLoja)

	pending, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "PIX_GATEWAY"})
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, pending.ID, admin)
	var invalid *apperror.InvalidStateTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestCancelThenDelete_NoDoubleReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, "10", 10, 0)
	sale, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 3}}, PaymentMethod: "CASH"})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, sale.ID, admin)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSale(ctx, sale.ID, admin))

	assert.Equal(t, 10, f.product(t, pid).StockLoja)
	assert.Len(t, f.movements(t, pid, domain.MovementReturn), 1)
}

func TestDeleteSale_TerminalWithOutstandingConsumptionNeedsForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, "10", 10, 0)

	// Venda CANCELLED cujo consumo nunca foi estornado (dado legado).
	saleID := uuid.NewString()
	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = f.ledger.ConsumeForSale(ctx, tx, pid, 4, domain.LocationLoja, saleID, "")
	require.NoError(t, err)
	require.NoError(t, tx.InsertSale(ctx, domain.Sale{ID: saleID, SaleNumber: "LEG-000001", Status: domain.SaleStatusCancelled}))
	require.NoError(t, tx.Commit())

	err = f.svc.DeleteSale(ctx, saleID, admin)
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 6, f.product(t, pid).StockLoja)

	force := admin
	force.Force = true
	require.NoError(t, f.svc.DeleteSale(ctx, saleID, force))
	assert.Equal(t, 10, f.product(t, pid).StockLoja)
}

func TestDeleteSale_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteSale(context.Background(), uuid.NewString(), domain.SaleAction{UserID: "seller"})
	var forbidden *apperror.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestListSales_FilterAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.seedProduct(t, "1", 10, 0)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Items: []domain.CheckoutItem{{ProductID: pid, Quantity: 1}}, PaymentMethod: "CASH"})
		require.NoError(t, err)
	}

	page, err := f.svc.ListSales(ctx, domain.SaleFilter{Status: domain.SaleStatusPaid, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	_, err = f.svc.ListSales(ctx, domain.SaleFilter{Status: "QUALQUER"})
	assert.Error(t, err)
}
