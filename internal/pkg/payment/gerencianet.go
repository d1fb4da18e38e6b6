package payment

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// URLs da API Pix da GerenciaNet (Efí).
const (
	GerenciaNetProductionURL = "https://pix.api.efipay.com.br"
	GerenciaNetSandboxURL    = "https://pix-h.api.efipay.com.br"
)

// GerenciaNetOptions reúne as credenciais da API Pix.
type GerenciaNetOptions struct {
	ClientID     string
	ClientSecret string
	PixKey       string
	BaseURL      string
	// CertFile/KeyFile habilitam o mTLS exigido em produção.
	CertFile string
	KeyFile  string
	Timeout  time.Duration
}

// GerenciaNet cria cobranças imediatas (/v2/cob). O txid é o id da venda sem hífens,
// o que permite recuperar a referência externa a partir da notificação pix.
type GerenciaNet struct {
	http    *resty.Client
	opts    GerenciaNetOptions
	baseURL string
	logger  logger.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewGerenciaNet cria o gateway, carregando o certificado quando informado.
func NewGerenciaNet(opts GerenciaNetOptions, log logger.Logger) (*GerenciaNet, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = GerenciaNetProductionURL
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")
	if opts.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("falha ao carregar certificado da GerenciaNet: %w", err)
		}
		client.SetCertificates(cert)
	}
	return &GerenciaNet{
		http:    client,
		opts:    opts,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  log,
	}, nil
}

func (g *GerenciaNet) Name() string { return NameGerenciaNet }

// accessToken obtém (e reaproveita até expirar) o token OAuth client_credentials.
func (g *GerenciaNet) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Before(g.expiresAt) {
		return g.token, nil
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := g.http.R().
		SetContext(ctx).
		SetBasicAuth(g.opts.ClientID, g.opts.ClientSecret).
		SetBody(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		Post(g.baseURL + "/oauth/token")
	if err := checkResponse(NameGerenciaNet, "/oauth/token", resp, err); err != nil {
		return "", err
	}
	g.token = out.AccessToken
	// Renova um minuto antes do vencimento.
	g.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return g.token, nil
}

type gerenciaNetCob struct {
	TxID          string `json:"txid"`
	Status        string `json:"status"`
	PixCopiaECola string `json:"pixCopiaECola"`
	Loc           struct {
		ID       int    `json:"id"`
		Location string `json:"location"`
	} `json:"loc"`
	Valor struct {
		Original string `json:"original"`
	} `json:"valor"`
}

// CreatePixPayment cria a cobrança com PUT /v2/cob/{txid} e busca a imagem do QR Code.
func (g *GerenciaNet) CreatePixPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	txid := strings.ReplaceAll(req.ExternalReference, "-", "")
	body := map[string]interface{}{
		"calendario":         map[string]int{"expiracao": pixExpiresIn},
		"valor":              map[string]string{"original": req.Amount.StringFixed(2)},
		"chave":              g.opts.PixKey,
		"solicitacaoPagador": req.Description,
	}
	if doc := onlyDigits(req.Customer.Document); len(doc) == 11 {
		body["devedor"] = map[string]string{"cpf": doc, "nome": req.Customer.Name}
	} else if len(doc) == 14 {
		body["devedor"] = map[string]string{"cnpj": doc, "nome": req.Customer.Name}
	}

	var cob gerenciaNetCob
	path := "/v2/cob/" + txid
	resp, err := g.http.R().SetContext(ctx).SetAuthToken(token).SetBody(body).SetResult(&cob).Put(g.baseURL + path)
	if err := checkResponse(NameGerenciaNet, path, resp, err); err != nil {
		g.logger.Error("Falha ao criar cobrança na GerenciaNet.", err)
		return domain.PaymentResponse{}, err
	}

	var qr struct {
		QRCode       string `json:"qrcode"`
		ImagemQRCode string `json:"imagemQrcode"`
	}
	qrPath := fmt.Sprintf("/v2/loc/%d/qrcode", cob.Loc.ID)
	resp2, err := g.http.R().SetContext(ctx).SetAuthToken(token).SetResult(&qr).Get(g.baseURL + qrPath)
	if err := checkResponse(NameGerenciaNet, qrPath, resp2, err); err != nil {
		return domain.PaymentResponse{}, err
	}

	pixCode := cob.PixCopiaECola
	if pixCode == "" {
		pixCode = qr.QRCode
	}
	g.logger.Info("Cobrança PIX criada na GerenciaNet.", map[string]interface{}{
		"txid":               cob.TxID,
		"status":             cob.Status,
		"external_reference": req.ExternalReference,
	})
	return domain.PaymentResponse{
		ID:                cob.TxID,
		Status:            cob.Status,
		PaymentURL:        cob.Loc.Location,
		QRCode:            pixCode,
		QRCodeBase64:      strings.TrimPrefix(qr.ImagemQRCode, "data:image/png;base64,"),
		PixCode:           pixCode,
		ExternalReference: req.ExternalReference,
		Gateway:           NameGerenciaNet,
		Raw:               json.RawMessage(resp.Body()),
	}, nil
}

// NormalizeWebhook aceita a notificação {"pix": [...]} (pagamento recebido) ou o corpo de uma cobrança.
func (g *GerenciaNet) NormalizeWebhook(ctx context.Context, raw []byte) (domain.NormalizedWebhook, error) {
	var body struct {
		Pix []struct {
			EndToEndID string `json:"endToEndId"`
			TxID       string `json:"txid"`
			Valor      string `json:"valor"`
		} `json:"pix"`
		gerenciaNetCob
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameGerenciaNet, "payload de webhook inválido", err)
	}

	if len(body.Pix) > 0 {
		p := body.Pix[0]
		amount, _ := decimal.NewFromString(p.Valor)
		return domain.NormalizedWebhook{
			ID:                p.TxID,
			Status:            domain.PaymentApproved,
			RawStatus:         "PIX_RECEBIDO",
			ExternalReference: externalRefFromTxID(p.TxID),
			Amount:            amount,
			Event:             "pix",
		}, nil
	}

	if body.TxID == "" {
		return domain.NormalizedWebhook{}, apperror.NewGatewayError(NameGerenciaNet, "webhook sem txid", nil)
	}
	amount, _ := decimal.NewFromString(body.Valor.Original)
	return domain.NormalizedWebhook{
		ID:                body.TxID,
		Status:            NormalizeGerenciaNetStatus(body.Status),
		RawStatus:         body.Status,
		ExternalReference: externalRefFromTxID(body.TxID),
		Amount:            amount,
		Event:             "cob",
	}, nil
}

// externalRefFromTxID reconstrói o UUID da venda a partir do txid (32 hex sem hífens).
func externalRefFromTxID(txid string) string {
	id, err := uuid.Parse(txid)
	if err != nil {
		return ""
	}
	return id.String()
}
