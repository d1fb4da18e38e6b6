package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PaymentCustomer identifica o pagador enviado ao gateway.
type PaymentCustomer struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone"`
	Document string `json:"document,omitempty"`
}

// PaymentRequest é o pedido normalizado de criação de cobrança PIX.
type PaymentRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	Customer          PaymentCustomer `json:"customer"`
	ExternalReference string          `json:"external_reference"`
	NotificationURL   string          `json:"notification_url"`
}

// PaymentResponse é a resposta normalizada de qualquer gateway.
type PaymentResponse struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	PaymentURL        string          `json:"payment_url,omitempty"`
	QRCode            string          `json:"qr_code,omitempty"`
	QRCodeBase64      string          `json:"qr_code_base64,omitempty"`
	PixCode           string          `json:"pix_code,omitempty"`
	ExternalReference string          `json:"external_reference"`
	Gateway           string          `json:"gateway"`
	Raw               json.RawMessage `json:"-"`
}

// NormalizedStatus é o vocabulário comum de status entre gateways.
type NormalizedStatus string

const (
	PaymentApproved  NormalizedStatus = "approved"
	PaymentPending   NormalizedStatus = "pending"
	PaymentRejected  NormalizedStatus = "rejected"
	PaymentCancelled NormalizedStatus = "cancelled"
)

// TargetSaleStatus mapeia o status normalizado para o status de venda desejado.
// ok=false quando o webhook não pede transição (pendente ou desconhecido).
func (s NormalizedStatus) TargetSaleStatus() (SaleStatus, bool) {
	switch s {
	case PaymentApproved:
		return SaleStatusPaid, true
	case PaymentRejected, PaymentCancelled:
		return SaleStatusCancelled, true
	}
	return "", false
}

// NormalizedWebhook é o formato canônico de um webhook de pagamento.
type NormalizedWebhook struct {
	ID                string           `json:"id"`
	Status            NormalizedStatus `json:"status"`
	RawStatus         string           `json:"raw_status"`
	ExternalReference string           `json:"external_reference"`
	Amount            decimal.Decimal  `json:"amount"`
	Event             string           `json:"event,omitempty"`
}

// SettlementResult descreve o efeito de um webhook aplicado a uma venda.
type SettlementResult struct {
	SaleID         string            `json:"sale_id"`
	SaleNumber     string            `json:"sale_number"`
	PreviousStatus SaleStatus        `json:"previous_status"`
	Status         SaleStatus        `json:"status"`
	Applied        bool              `json:"applied"`
	Webhook        NormalizedWebhook `json:"webhook"`
}
