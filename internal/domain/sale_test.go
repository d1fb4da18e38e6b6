package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

func TestSaleStatus_CanTransitionTo(t *testing.T) {
	allowed := map[domain.SaleStatus][]domain.SaleStatus{
		domain.SaleStatusPending: {domain.SaleStatusPaid, domain.SaleStatusCancelled},
		domain.SaleStatusPaid:    {domain.SaleStatusCancelled, domain.SaleStatusRefunded},
	}
	all := []domain.SaleStatus{domain.SaleStatusPending, domain.SaleStatusPaid, domain.SaleStatusCancelled, domain.SaleStatusRefunded}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestSaleStatus_HoldsStock(t *testing.T) {
	assert.True(t, domain.SaleStatusPending.HoldsStock())
	assert.True(t, domain.SaleStatusPaid.HoldsStock())
	assert.False(t, domain.SaleStatusCancelled.HoldsStock())
	assert.False(t, domain.SaleStatusRefunded.HoldsStock())
}

func TestPaymentMethod_InitialStatus(t *testing.T) {
	m, err := domain.ParsePaymentMethod("cash")
	assert.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPaid, m.InitialStatus())

	m, err = domain.ParsePaymentMethod("PIX_GATEWAY")
	assert.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPending, m.InitialStatus())

	_, err = domain.ParsePaymentMethod("BOLETO")
	var vErr *apperror.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "INVALID_PAYMENT_METHOD", vErr.Category())
}

func TestComputeTotals(t *testing.T) {
	items := []domain.SaleItem{
		{Quantity: 3, UnitPrice: decimal.RequireFromString("10.50"), Total: decimal.RequireFromString("31.50")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("8.00"), Total: decimal.RequireFromString("8.00")},
	}

	subtotal, total := domain.ComputeTotals(items, decimal.RequireFromString("5"), decimal.RequireFromString("7.25"))

	assert.True(t, subtotal.Equal(decimal.RequireFromString("39.50")), subtotal.String())
	assert.True(t, total.Equal(decimal.RequireFromString("41.75")), total.String())
}

func TestNormalizedStatus_TargetSaleStatus(t *testing.T) {
	st, ok := domain.PaymentApproved.TargetSaleStatus()
	assert.True(t, ok)
	assert.Equal(t, domain.SaleStatusPaid, st)

	st, ok = domain.PaymentRejected.TargetSaleStatus()
	assert.True(t, ok)
	assert.Equal(t, domain.SaleStatusCancelled, st)

	_, ok = domain.PaymentPending.TargetSaleStatus()
	assert.False(t, ok)
}
