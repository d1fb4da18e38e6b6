package payment

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// Mock gera cobranças falsas sem rede (PAYMENT_GATEWAY_MOCK=true).
// O webhook usa o vocabulário normalizado diretamente: approved, pending, rejected, cancelled.
type Mock struct {
	logger logger.Logger
}

// NewMock cria o gateway de testes/desenvolvimento.
func NewMock(log logger.Logger) *Mock {
	return &Mock{logger: log}
}

func (g *Mock) Name() string { return NameMock }

func (g *Mock) CreatePixPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	id := "mock-" + uuid.NewString()
	pix := "00020126580014BR.GOV.BCB.PIX0136" + id + "5204000053039865405" + req.Amount.StringFixed(2)
	raw, _ := json.Marshal(map[string]interface{}{
		"id":                 id,
		"status":             "pending",
		"external_reference": req.ExternalReference,
		"amount":             req.Amount,
	})
	g.logger.Info("Cobrança PIX simulada.", map[string]interface{}{
		"payment_id":         id,
		"external_reference": req.ExternalReference,
	})
	return domain.PaymentResponse{
		ID:                id,
		Status:            string(domain.PaymentPending),
		QRCode:            pix,
		PixCode:           pix,
		ExternalReference: req.ExternalReference,
		Gateway:           NameMock,
		Raw:               raw,
	}, nil
}

func (g *Mock) NormalizeWebhook(ctx context.Context, raw []byte) (domain.NormalizedWebhook, error) {
	var body struct {
		ID                string          `json:"id"`
		Event             string          `json:"event"`
		Status            string          `json:"status"`
		ExternalReference string          `json:"external_reference"`
		Amount            decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameMock, "payload de webhook inválido", err)
	}
	status := domain.NormalizedStatus(strings.ToLower(body.Status))
	switch status {
	case domain.PaymentApproved, domain.PaymentRejected, domain.PaymentCancelled:
	default:
		status = domain.PaymentPending
	}
	return domain.NormalizedWebhook{
		ID:                body.ID,
		Status:            status,
		RawStatus:         body.Status,
		ExternalReference: body.ExternalReference,
		Amount:            body.Amount,
		Event:             body.Event,
	}, nil
}
