package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// URLs públicas da API v3 do Asaas.
const (
	AsaasProductionURL = "https://api.asaas.com/v3"
	AsaasSandboxURL    = "https://sandbox.asaas.com/api/v3"
)

// Asaas cria cobranças PIX em três passos: cliente, cobrança e QR Code.
type Asaas struct {
	http    *resty.Client
	baseURL string
	logger  logger.Logger
}

// NewAsaas cria o gateway. baseURL vazio usa produção.
func NewAsaas(apiKey, baseURL string, timeout time.Duration, log logger.Logger) *Asaas {
	if baseURL == "" {
		baseURL = AsaasProductionURL
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("access_token", apiKey).
		SetHeader("Content-Type", "application/json")
	return &Asaas{http: client, baseURL: strings.TrimRight(baseURL, "/"), logger: log}
}

func (g *Asaas) Name() string { return NameAsaas }

type asaasCustomer struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
	CpfCnpj     string `json:"cpfCnpj,omitempty"`
}

type asaasPayment struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	Value             float64 `json:"value"`
	ExternalReference string  `json:"externalReference"`
	InvoiceURL        string  `json:"invoiceUrl"`
}

type asaasPixQrCode struct {
	EncodedImage string `json:"encodedImage"`
	Payload      string `json:"payload"`
}

// CreatePixPayment cria o cliente, a cobrança PIX e busca o QR Code.
func (g *Asaas) CreatePixPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	var customer asaasCustomer
	if err := g.post(ctx, "/customers", asaasCustomer{
		Name:        req.Customer.Name,
		Email:       req.Customer.Email,
		MobilePhone: onlyDigits(req.Customer.Phone),
		CpfCnpj:     onlyDigits(req.Customer.Document),
	}, &customer); err != nil {
		return domain.PaymentResponse{}, err
	}

	amount, _ := req.Amount.Float64()
	var pay asaasPayment
	if err := g.post(ctx, "/payments", map[string]interface{}{
		"customer":          customer.ID,
		"billingType":       "PIX",
		"value":             amount,
		"dueDate":           time.Now().Format("2006-01-02"),
		"description":       req.Description,
		"externalReference": req.ExternalReference,
	}, &pay); err != nil {
		return domain.PaymentResponse{}, err
	}

	var qr asaasPixQrCode
	if err := g.get(ctx, fmt.Sprintf("/payments/%s/pixQrCode", pay.ID), &qr); err != nil {
		return domain.PaymentResponse{}, err
	}

	raw, _ := json.Marshal(map[string]interface{}{"payment": pay, "pixQrCode": qr})
	g.logger.Info("Cobrança PIX criada no Asaas.", map[string]interface{}{
		"payment_id":         pay.ID,
		"status":             pay.Status,
		"external_reference": req.ExternalReference,
	})
	return domain.PaymentResponse{
		ID:                pay.ID,
		Status:            pay.Status,
		PaymentURL:        pay.InvoiceURL,
		QRCode:            qr.Payload,
		QRCodeBase64:      qr.EncodedImage,
		PixCode:           qr.Payload,
		ExternalReference: req.ExternalReference,
		Gateway:           NameAsaas,
		Raw:               raw,
	}, nil
}

// NormalizeWebhook lê {"event": "...", "payment": {...}}.
func (g *Asaas) NormalizeWebhook(ctx context.Context, raw []byte) (domain.NormalizedWebhook, error) {
	var body struct {
		Event   string       `json:"event"`
		Payment asaasPayment `json:"payment"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameAsaas, "payload de webhook inválido", err)
	}
	if body.Payment.ID == "" {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameAsaas, "webhook sem pagamento", nil)
	}
	return domain.NormalizedWebhook{
		ID:                body.Payment.ID,
		Status:            NormalizeAsaasStatus(body.Payment.Status),
		RawStatus:         body.Payment.Status,
		ExternalReference: body.Payment.ExternalReference,
		Amount:            decimal.NewFromFloat(body.Payment.Value),
		Event:             body.Event,
	}, nil
}

func (g *Asaas) post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := g.http.R().SetContext(ctx).SetBody(body).SetResult(out).Post(g.baseURL + path)
	return checkResponse(NameAsaas, path, resp, err)
}

func (g *Asaas) get(ctx context.Context, path string, out interface{}) error {
	resp, err := g.http.R().SetContext(ctx).SetResult(out).Get(g.baseURL + path)
	return checkResponse(NameAsaas, path, resp, err)
}

// checkResponse converte falhas de transporte e respostas 4xx/5xx em GatewayError.
func checkResponse(gateway, path string, resp *resty.Response, err error) error {
	if err != nil {
		return apperror.NewGatewayError(gateway, "falha de comunicação em "+path, err)
	}
	if resp.IsError() {
		return apperror.NewGatewayError(gateway, fmt.Sprintf("%s respondeu %d: %s", path, resp.StatusCode(), truncate(resp.String(), 300)), nil)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
