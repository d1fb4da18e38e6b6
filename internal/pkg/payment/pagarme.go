package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// PagarMeURL é a base da API core v5.
const PagarMeURL = "https://api.pagar.me/core/v5"

// pixExpiresIn é a validade do QR Code em segundos.
const pixExpiresIn = 3600

// PagarMe cria pedidos (orders) com uma cobrança pix.
type PagarMe struct {
	http    *resty.Client
	baseURL string
	logger  logger.Logger
}

// NewPagarMe cria o gateway. A secret key vai como usuário do Basic Auth.
func NewPagarMe(secretKey, baseURL string, timeout time.Duration, log logger.Logger) *PagarMe {
	if baseURL == "" {
		baseURL = PagarMeURL
	}
	client := resty.New().
		SetTimeout(timeout).
		SetBasicAuth(secretKey, "").
		SetHeader("Content-Type", "application/json")
	return &PagarMe{http: client, baseURL: strings.TrimRight(baseURL, "/"), logger: log}
}

func (g *PagarMe) Name() string { return NamePagarMe }

type pagarMeOrder struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Charges []struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		LastTransaction struct {
			QRCode    string `json:"qr_code"`
			QRCodeURL string `json:"qr_code_url"`
		} `json:"last_transaction"`
	} `json:"charges"`
}

// CreatePixPayment cria o pedido com um item único no valor total da venda.
func (g *PagarMe) CreatePixPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	cents := req.Amount.Shift(2).Round(0).IntPart()
	customer := map[string]interface{}{
		"name":  req.Customer.Name,
		"email": req.Customer.Email,
		"type":  "individual",
	}
	if doc := onlyDigits(req.Customer.Document); doc != "" {
		customer["document"] = doc
	}
	phone := onlyDigits(req.Customer.Phone)
	if strings.HasPrefix(phone, "55") && len(phone) > 11 {
		phone = phone[2:]
	}
	if len(phone) >= 10 {
		customer["phones"] = map[string]interface{}{
			"mobile_phone": map[string]string{
				"country_code": "55",
				"area_code":    phone[:2],
				"number":       phone[2:],
			},
		}
	}
	body := map[string]interface{}{
		"code":     req.ExternalReference,
		"customer": customer,
		"items": []map[string]interface{}{{
			"amount":      cents,
			"description": req.Description,
			"quantity":    1,
			"code":        req.ExternalReference,
		}},
		"payments": []map[string]interface{}{{
			"payment_method": "pix",
			"pix":            map[string]interface{}{"expires_in": pixExpiresIn},
		}},
	}

	var order pagarMeOrder
	resp, err := g.http.R().SetContext(ctx).SetBody(body).SetResult(&order).Post(g.baseURL + "/orders")
	if err := checkResponse(NamePagarMe, "/orders", resp, err); err != nil {
		g.logger.Error("Falha ao criar pedido no Pagar.me.", err)
		return domain.PaymentResponse{}, err
	}
	if len(order.Charges) == 0 {
		return domain.PaymentResponse{}, apperror.NewGatewayError(NamePagarMe, "pedido criado sem cobrança pix", nil)
	}

	tx := order.Charges[0].LastTransaction
	g.logger.Info("Pedido PIX criado no Pagar.me.", map[string]interface{}{
		"order_id":           order.ID,
		"status":             order.Status,
		"external_reference": req.ExternalReference,
	})
	return domain.PaymentResponse{
		ID:                order.ID,
		Status:            order.Status,
		PaymentURL:        tx.QRCodeURL,
		QRCode:            tx.QRCode,
		PixCode:           tx.QRCode,
		ExternalReference: req.ExternalReference,
		Gateway:           NamePagarMe,
		Raw:               json.RawMessage(resp.Body()),
	}, nil
}

// NormalizeWebhook lê eventos order.* e charge.*. Para charge.* o pedido vem em data.order.
func (g *PagarMe) NormalizeWebhook(ctx context.Context, raw []byte) (domain.NormalizedWebhook, error) {
	var body struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			ID     string `json:"id"`
			Code   string `json:"code"`
			Status string `json:"status"`
			Amount int64  `json:"amount"`
			Order  *struct {
				ID   string `json:"id"`
				Code string `json:"code"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NamePagarMe, "payload de webhook inválido", err)
	}

	id, ref := body.Data.ID, body.Data.Code
	if body.Data.Order != nil {
		id, ref = body.Data.Order.ID, body.Data.Order.Code
	}
	if id == "" {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NamePagarMe, "webhook sem pedido", nil)
	}
	return domain.NormalizedWebhook{
		ID:                id,
		Status:            NormalizePagarMeStatus(body.Data.Status),
		RawStatus:         body.Data.Status,
		ExternalReference: ref,
		Amount:            decimal.New(body.Data.Amount, -2),
		Event:             body.Type,
	}, nil
}
