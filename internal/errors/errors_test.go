package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apperror "goloja/internal/errors"
)

func TestMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{"validação", apperror.NewValidationError("campo obrigatório"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"método de pagamento", apperror.NewInvalidPaymentMethodError("BOLETO"), http.StatusBadRequest, "INVALID_PAYMENT_METHOD"},
		{"produto inexistente", apperror.NewProductNotFoundError("p1"), http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"venda inexistente", apperror.NewSaleNotFoundError("s1"), http.StatusNotFound, "SALE_NOT_FOUND"},
		{"estoque insuficiente", apperror.NewInsufficientStockError("p1", "LOJA", 2, 5), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"localização", apperror.NewInvalidLocationError("LOJA -> LOJA"), http.StatusBadRequest, "INVALID_LOCATION"},
		{"transição", apperror.NewInvalidStateTransitionError("CANCELLED", "PAID"), http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{"gateway", apperror.NewGatewayError("asaas", "timeout", fmt.Errorf("deadline")), http.StatusBadGateway, "GATEWAY_ERROR"},
		{"embrulhado", fmt.Errorf("checkout: %w", apperror.NewConflictError("versão")), http.StatusConflict, "CONFLICT"},
		{"não tipado", fmt.Errorf("boom"), http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, category, _ := apperror.MapToHTTPStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.category, category)
		})
	}
}

func TestInsufficientStockError_Message(t *testing.T) {
	err := apperror.NewInsufficientStockError("p1", "LOJA", 2, 5)
	assert.Equal(t, "Estoque insuficiente em LOJA: disponível 2, solicitado 5", err.Error())
}

func TestGatewayError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := apperror.NewGatewayError("mercadopago", "falha ao criar cobrança", cause)
	assert.ErrorIs(t, err, cause)
}
