package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/shopspring/decimal"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// ErrMissingMercadoPagoAccessToken é retornado quando MERCADOPAGO_ACCESS_TOKEN está vazio.
var ErrMissingMercadoPagoAccessToken = errors.New("MERCADOPAGO_ACCESS_TOKEN não configurado")

// MercadoPago usa o SDK oficial (payment.Client) para criar e consultar pagamentos PIX.
type MercadoPago struct {
	client payment.Client
	logger logger.Logger
}

// NewMercadoPago cria o gateway a partir do access token.
func NewMercadoPago(accessToken string, log logger.Logger) (*MercadoPago, error) {
	if accessToken == "" {
		return nil, ErrMissingMercadoPagoAccessToken
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, err
	}
	return &MercadoPago{client: payment.NewClient(cfg), logger: log}, nil
}

// NewMercadoPagoWithClient permite injetar um payment.Client (testes).
func NewMercadoPagoWithClient(client payment.Client, log logger.Logger) *MercadoPago {
	return &MercadoPago{client: client, logger: log}
}

func (g *MercadoPago) Name() string { return NameMercadoPago }

// CreatePixPayment cria um pagamento com payment_method_id=pix.
func (g *MercadoPago) CreatePixPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	amount, _ := req.Amount.Float64()
	payer := &payment.PayerRequest{
		Email:     req.Customer.Email,
		FirstName: req.Customer.Name,
	}
	if doc := onlyDigits(req.Customer.Document); doc != "" {
		docType := "CPF"
		if len(doc) == 14 {
			docType = "CNPJ"
		}
		payer.Identification = &payment.IdentificationRequest{Type: docType, Number: doc}
	}

	resp, err := g.client.Create(ctx, payment.Request{
		TransactionAmount: amount,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		Payer:             payer,
	})
	if err != nil {
		g.logger.Error("Falha ao criar pagamento no Mercado Pago.", err)
		return domain.PaymentResponse{}, apperror.NewGatewayError(NameMercadoPago, "falha ao criar pagamento", err)
	}

	raw, _ := json.Marshal(resp)
	td := resp.PointOfInteraction.TransactionData
	g.logger.Info("Pagamento PIX criado no Mercado Pago.", map[string]interface{}{
		"payment_id":         resp.ID,
		"status":             resp.Status,
		"external_reference": resp.ExternalReference,
	})
	return domain.PaymentResponse{
		ID:                strconv.Itoa(resp.ID),
		Status:            resp.Status,
		PaymentURL:        td.TicketURL,
		QRCode:            td.QRCode,
		QRCodeBase64:      td.QRCodeBase64,
		PixCode:           td.QRCode,
		ExternalReference: req.ExternalReference,
		Gateway:           NameMercadoPago,
		Raw:               raw,
	}, nil
}

type mercadoPagoNotification struct {
	ID                json.Number `json:"id"`
	Action            string      `json:"action"`
	Type              string      `json:"type"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
	Data              struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// NormalizeWebhook aceita o payload completo do pagamento ou a notificação
// {"type":"payment","data":{"id":...}}, que é resolvida via payment.Client.Get.
func (g *MercadoPago) NormalizeWebhook(ctx context.Context, raw []byte) (domain.NormalizedWebhook, error) {
	var n mercadoPagoNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameMercadoPago, "payload de webhook inválido", err)
	}

	event := n.Action
	if event == "" {
		event = n.Type
	}

	if n.Status != "" {
		return domain.NormalizedWebhook{
			ID:                n.ID.String(),
			Status:            NormalizeMercadoPagoStatus(n.Status),
			RawStatus:         n.Status,
			ExternalReference: n.ExternalReference,
			Amount:            decimal.NewFromFloat(n.TransactionAmount),
			Event:             event,
		}, nil
	}

	if n.Type != "" && !strings.HasPrefix(n.Type, "payment") {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameMercadoPago, "notificação não é de pagamento: "+n.Type, nil)
	}
	id, err := strconv.Atoi(n.Data.ID.String())
	if err != nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameMercadoPago, "notificação sem id de pagamento", err)
	}
	if g.client == nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameMercadoPago, "cliente não configurado", nil)
	}

	resp, err := g.client.Get(ctx, id)
	if err != nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameMercadoPago, "falha ao consultar pagamento", err)
	}
	return domain.NormalizedWebhook{
		ID:                strconv.Itoa(resp.ID),
		Status:            NormalizeMercadoPagoStatus(resp.Status),
		RawStatus:         resp.Status,
		ExternalReference: resp.ExternalReference,
		Amount:            decimal.NewFromFloat(resp.TransactionAmount),
		Event:             event,
	}, nil
}
