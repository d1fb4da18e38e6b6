// Package payment reúne os gateways de cobrança PIX atrás de uma interface única.
// Cada variante converte a própria API para o contrato normalizado de domain.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"goloja/internal/domain"
)

// Nomes dos gateways suportados. São os valores aceitos em PAYMENT_GATEWAY e na rota de webhook.
const (
	NameMercadoPago = "mercadopago"
	NameAsaas       = "asaas"
	NamePagarMe     = "pagarme"
	NameGerenciaNet = "gerencianet"
	NameMock        = "mock"
)

// Gateway é o contrato de todos os provedores de pagamento.
type Gateway interface {
	Name() string
	CreatePixPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error)
	// NormalizeWebhook converte o payload bruto no formato canônico.
	NormalizeWebhook(ctx context.Context, raw []byte) (domain.NormalizedWebhook, error)
}

// Config é o conjunto imutável de gateways disponíveis, montado no main e injetado nos serviços.
type Config struct {
	gateways        map[string]Gateway
	defaultName     string
	notificationURL string
}

// NewConfig monta a configuração. defaultName precisa estar entre os gateways informados
// (ou ser vazio, quando nenhum gateway foi configurado).
func NewConfig(defaultName, notificationBaseURL string, gateways ...Gateway) (*Config, error) {
	c := &Config{
		gateways:        make(map[string]Gateway, len(gateways)),
		defaultName:     strings.ToLower(strings.TrimSpace(defaultName)),
		notificationURL: strings.TrimRight(notificationBaseURL, "/"),
	}
	for _, g := range gateways {
		if g == nil {
			continue
		}
		c.gateways[g.Name()] = g
	}
	if c.defaultName != "" {
		if _, ok := c.gateways[c.defaultName]; !ok {
			return nil, fmt.Errorf("gateway padrão '%s' não está configurado", c.defaultName)
		}
	}
	return c, nil
}

// Get devolve o gateway pelo nome.
func (c *Config) Get(name string) (Gateway, bool) {
	if c == nil {
		return nil, false
	}
	g, ok := c.gateways[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// Default devolve o gateway padrão.
func (c *Config) Default() (Gateway, bool) {
	if c == nil || c.defaultName == "" {
		return nil, false
	}
	return c.Get(c.defaultName)
}

// Resolve devolve o gateway pedido ou, quando name é vazio, o padrão.
func (c *Config) Resolve(name string) (Gateway, bool) {
	if strings.TrimSpace(name) == "" {
		return c.Default()
	}
	return c.Get(name)
}

// NotificationURL é a URL de webhook que o gateway deve chamar.
func (c *Config) NotificationURL(name string) string {
	if c == nil || c.notificationURL == "" {
		return ""
	}
	return c.notificationURL + "/v1/webhooks/payments/" + name
}

// Names lista os gateways configurados em ordem alfabética.
func (c *Config) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.gateways))
	for n := range c.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ProbeEvent extrai o nome do evento de um payload qualquer, para a trilha de auditoria.
func ProbeEvent(raw []byte) string {
	var probe struct {
		Event  string `json:"event"`
		Action string `json:"action"`
		Type   string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "unknown"
	}
	switch {
	case probe.Event != "":
		return probe.Event
	case probe.Action != "":
		return probe.Action
	case probe.Type != "":
		return probe.Type
	}
	return "unknown"
}

// --- Tabelas de normalização de status ---

var mercadoPagoStatus = map[string]domain.NormalizedStatus{
	"approved":     domain.PaymentApproved,
	"authorized":   domain.PaymentApproved,
	"in_process":   domain.PaymentPending,
	"pending":      domain.PaymentPending,
	"in_mediation": domain.PaymentPending,
	"rejected":     domain.PaymentRejected,
	"cancelled":    domain.PaymentCancelled,
	"refunded":     domain.PaymentCancelled,
	"charged_back": domain.PaymentCancelled,
}

var asaasStatus = map[string]domain.NormalizedStatus{
	"RECEIVED":         domain.PaymentApproved,
	"CONFIRMED":        domain.PaymentApproved,
	"RECEIVED_IN_CASH": domain.PaymentApproved,
	"PENDING":          domain.PaymentPending,
	"OVERDUE":          domain.PaymentPending,
	"REFUNDED":         domain.PaymentCancelled,
	"REFUND_REQUESTED": domain.PaymentCancelled,
}

var pagarMeStatus = map[string]domain.NormalizedStatus{
	"paid":            domain.PaymentApproved,
	"pending":         domain.PaymentPending,
	"processing":      domain.PaymentPending,
	"waiting_payment": domain.PaymentPending,
	"failed":          domain.PaymentRejected,
	"canceled":        domain.PaymentCancelled,
	"refunded":        domain.PaymentCancelled,
	"chargedback":     domain.PaymentCancelled,
}

var gerenciaNetStatus = map[string]domain.NormalizedStatus{
	"CONCLUIDA":                       domain.PaymentApproved,
	"ATIVA":                           domain.PaymentPending,
	"REMOVIDA_PELO_USUARIO_RECEBEDOR": domain.PaymentCancelled,
	"REMOVIDA_PELO_PSP":               domain.PaymentCancelled,
}

// Status fora da tabela viram pending: não disparam transição.
func lookupStatus(table map[string]domain.NormalizedStatus, raw string) domain.NormalizedStatus {
	if s, ok := table[raw]; ok {
		return s
	}
	return domain.PaymentPending
}

// NormalizeMercadoPagoStatus aplica a tabela do Mercado Pago.
func NormalizeMercadoPagoStatus(raw string) domain.NormalizedStatus {
	return lookupStatus(mercadoPagoStatus, strings.ToLower(strings.TrimSpace(raw)))
}

// NormalizeAsaasStatus aplica a tabela do Asaas.
func NormalizeAsaasStatus(raw string) domain.NormalizedStatus {
	return lookupStatus(asaasStatus, strings.ToUpper(strings.TrimSpace(raw)))
}

// NormalizePagarMeStatus aplica a tabela do Pagar.me.
func NormalizePagarMeStatus(raw string) domain.NormalizedStatus {
	return lookupStatus(pagarMeStatus, strings.ToLower(strings.TrimSpace(raw)))
}

// NormalizeGerenciaNetStatus aplica a tabela da GerenciaNet (Efí).
func NormalizeGerenciaNetStatus(raw string) domain.NormalizedStatus {
	return lookupStatus(gerenciaNetStatus, strings.ToUpper(strings.TrimSpace(raw)))
}

// onlyDigits remove máscara de telefone e documento.
func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
