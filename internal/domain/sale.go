package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperror "goloja/internal/errors"
)

// SaleStatus é o estado da venda na máquina de estados.
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDING"
	SaleStatusPaid      SaleStatus = "PAID"
	SaleStatusCancelled SaleStatus = "CANCELLED"
	SaleStatusRefunded  SaleStatus = "REFUNDED"
)

var saleTransitions = map[SaleStatus][]SaleStatus{
	SaleStatusPending: {SaleStatusPaid, SaleStatusCancelled},
	SaleStatusPaid:    {SaleStatusCancelled, SaleStatusRefunded},
}

// Valid informa se o status pertence ao enum.
func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPending, SaleStatusPaid, SaleStatusCancelled, SaleStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo informa se next é alcançável a partir de s.
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	for _, allowed := range saleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsStock é verdadeiro enquanto o consumo de estoque da venda ainda não foi revertido.
func (s SaleStatus) HoldsStock() bool {
	return s == SaleStatusPending || s == SaleStatusPaid
}

// RequiresAdmin marca as transições que só um administrador pode disparar.
func RequiresAdmin(from, to SaleStatus) bool {
	return from == SaleStatusPaid && (to == SaleStatusCancelled || to == SaleStatusRefunded)
}

// ParseSaleStatus valida um status vindo de filtros da API.
func ParseSaleStatus(raw string) (SaleStatus, error) {
	st := SaleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !st.Valid() {
		return "", apperror.NewValidationError("Status de venda inválido: '" + raw + "'")
	}
	return st, nil
}

// PaymentMethod é a forma de pagamento escolhida no checkout.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "CASH"
	PaymentDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentPix        PaymentMethod = "PIX"         // PIX conferido no balcão
	PaymentPixGateway PaymentMethod = "PIX_GATEWAY" // cobrança gerada no gateway, liquidada por webhook
)

// ParsePaymentMethod valida o método informado no checkout.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case PaymentCash, PaymentDebitCard, PaymentCreditCard, PaymentPix, PaymentPixGateway:
		return m, nil
	}
	return "", apperror.NewInvalidPaymentMethodError(raw)
}

// RequiresGateway indica liquidação assíncrona via gateway.
func (m PaymentMethod) RequiresGateway() bool {
	return m == PaymentPixGateway
}

// InitialStatus aplica a política de status inicial: confirmação síncrona nasce PAID.
func (m PaymentMethod) InitialStatus() SaleStatus {
	if m.RequiresGateway() {
		return SaleStatusPending
	}
	return SaleStatusPaid
}

// Sale é o agregado de venda: cabeçalho e itens.
type Sale struct {
	ID               string          `json:"id"`
	SaleNumber       string          `json:"sale_number"`
	Status           SaleStatus      `json:"status"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	DeliveryFee      decimal.Decimal `json:"delivery_fee"`
	Total            decimal.Decimal `json:"total"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Gateway          string          `json:"gateway,omitempty"`
	PixCode          string          `json:"pix_code,omitempty"`
	QRCodeBase64     string          `json:"qr_code_base64,omitempty"`
	PaymentURL       string          `json:"payment_url,omitempty"`
	GatewayResponse  json.RawMessage `json:"gateway_response,omitempty"`
	LeadID           string          `json:"lead_id,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	Items            []SaleItem      `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SaleItem é imutável depois de criado. UnitPrice é o preço do produto no momento da venda.
type SaleItem struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Location  Location        `json:"location"`
}

// ComputeTotals calcula subtotal e total a partir dos itens.
// total = subtotal - desconto + taxa de entrega.
func ComputeTotals(items []SaleItem, discount, deliveryFee decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Total)
	}
	return subtotal, subtotal.Sub(discount).Add(deliveryFee)
}

// CheckoutItem é uma linha do pedido de checkout.
type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutRequest é o payload de criação de venda.
type CheckoutRequest struct {
	Items         []CheckoutItem  `json:"items"`
	PaymentMethod string          `json:"payment_method"`
	Location      string          `json:"location,omitempty"`
	LeadID        string          `json:"lead_id,omitempty"`
	LeadName      string          `json:"lead_name,omitempty"`
	LeadPhone     string          `json:"lead_phone,omitempty"`
	LeadEmail     string          `json:"lead_email,omitempty"`
	Discount      decimal.Decimal `json:"discount"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Notes         string          `json:"notes,omitempty"`
	Gateway       string          `json:"gateway,omitempty"`
	UserID        string          `json:"-"`
}

// SaleFilter define os parâmetros de listagem de vendas.
type SaleFilter struct {
	Status SaleStatus
	Page   int
	Limit  int
}

// SalePage é uma página de vendas.
type SalePage struct {
	Items []Sale `json:"items"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int    `json:"total"`
}

// SaleAction carrega quem pediu uma mudança de status e por quê.
type SaleAction struct {
	UserID  string
	IsAdmin bool
	Reason  string
	Force   bool
}
