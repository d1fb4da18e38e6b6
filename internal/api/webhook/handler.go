package webhook

import (
	"context"
	"io"
	"net/http"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// maxPayloadBytes limita o corpo aceito dos provedores.
const maxPayloadBytes = 1 << 20

// SettlementService define o contrato que o Handler espera da camada de Serviço.
type SettlementService interface {
	ApplyWebhook(ctx context.Context, gatewayName string, raw []byte) (*domain.SettlementResult, error)
	RecordExternalEvent(ctx context.Context, source domain.ExternalEventSource, raw []byte) ([]domain.LeadEvent, error)
}

// Ack é a resposta devolvida aos provedores.
type Ack struct {
	Received bool                     `json:"received"`
	Result   *domain.SettlementResult `json:"result,omitempty"`
	Events   []domain.LeadEvent       `json:"events,omitempty"`
}

// Handler recebe webhooks de pagamento e do CRM.
type Handler struct {
	Service SettlementService
	CRM     domain.ExternalEventSource
	Logger  logger.Logger
}

// NewHandler cria o Handler. crm pode ser nil quando a integração está desligada.
func NewHandler(svc SettlementService, crm domain.ExternalEventSource, log logger.Logger) *Handler {
	return &Handler{Service: svc, CRM: crm, Logger: log}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Handle(w, r, h.Logger, data, err, successStatus)
}

func readPayload(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		return nil, apperror.NewValidationError("Não foi possível ler o corpo do webhook.")
	}
	return raw, nil
}

// PaymentWebhookHandler lida com POST /v1/webhooks/payments/{gateway}.
// @Summary Webhook de pagamento
// @Description Todo payload é auditado. Depois de gravado, a resposta é sempre 200 para o provedor não reenviar.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param gateway path string true "mercadopago, asaas, pagarme, gerencianet ou mock"
// @Success 200 {object} Ack
// @Failure 500 {object} domain.ErrorResponse "Falha ao gravar a auditoria"
// @Router /webhooks/payments/{gateway} [post]
func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := readPayload(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	result, err := h.Service.ApplyWebhook(r.Context(), r.PathValue("gateway"), raw)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	h.handleServiceResponse(w, r, Ack{Received: true, Result: result}, nil, http.StatusOK)
}

// CRMWebhookHandler lida com POST /v1/webhooks/chatwoot.
// @Summary Webhook do CRM (Chatwoot)
// @Description Audita o evento e sincroniza leads com telefone.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} Ack
// @Failure 404 {object} domain.ErrorResponse "Integração desligada"
// @Router /webhooks/chatwoot [post]
func (h *Handler) CRMWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.CRM == nil {
		h.handleServiceResponse(w, r, nil, apperror.NewNotFoundError("integração com CRM não configurada"), http.StatusOK)
		return
	}
	raw, err := readPayload(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	events, err := h.Service.RecordExternalEvent(r.Context(), h.CRM, raw)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	h.handleServiceResponse(w, r, Ack{Received: true, Events: events}, nil, http.StatusOK)
}
