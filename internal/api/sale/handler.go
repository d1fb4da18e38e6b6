package sale

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/middleware"
)

// SaleService define o contrato que o Handler espera da camada de Serviço.
type SaleService interface {
	Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error)
	GetSale(ctx context.Context, id string) (domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) (domain.SalePage, error)
	Cancel(ctx context.Context, id string, action domain.SaleAction) (domain.Sale, error)
	Refund(ctx context.Context, id string, action domain.SaleAction) (domain.Sale, error)
	DeleteSale(ctx context.Context, id string, action domain.SaleAction) error
}

// ReasonRequest é o corpo opcional de cancelamento e reembolso.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// Handler agrupa os handlers de venda.
type Handler struct {
	Service SaleService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc SaleService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Handle(w, r, h.Logger, data, err, successStatus)
}

// action monta o SaleAction a partir das claims do token.
func action(r *http.Request, reason string, force bool) domain.SaleAction {
	claims, _ := middleware.GetUserClaimsFromContext(r.Context())
	return domain.SaleAction{
		UserID:  claims.UserID,
		IsAdmin: claims.IsAdmin(),
		Reason:  reason,
		Force:   force,
	}
}

// CreateSaleHandler lida com POST /v1/sales.
// @Summary Checkout
// @Description Cria a venda e baixa o estoque da localização informada (padrão LOJA). PIX_GATEWAY gera a cobrança no gateway.
// @Tags sales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sale body domain.CheckoutRequest true "Itens e pagamento"
// @Success 201 {object} domain.Sale
// @Failure 400 {object} domain.ErrorResponse "Validação ou método de pagamento inválido"
// @Failure 404 {object} domain.ErrorResponse "Produto ou lead inexistente"
// @Failure 409 {object} domain.ErrorResponse "Estoque insuficiente"
// @Failure 502 {object} domain.ErrorResponse "Falha no gateway (a venda é cancelada)"
// @Router /sales [post]
func (h *Handler) CreateSaleHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}
	req.UserID = action(r, "", false).UserID

	sale, err := h.Service.Checkout(r.Context(), req)
	h.handleServiceResponse(w, r, sale, err, http.StatusCreated)
}

// ListSalesHandler lida com GET /v1/sales.
// @Summary Lista vendas
// @Tags sales
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filtro de status"
// @Param page query int false "Página"
// @Param limit query int false "Itens por página"
// @Success 200 {object} domain.SalePage
// @Router /sales [get]
func (h *Handler) ListSalesHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := response.Pagination(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	result, err := h.Service.ListSales(r.Context(), domain.SaleFilter{
		Status: domain.SaleStatus(r.URL.Query().Get("status")),
		Page:   page,
		Limit:  limit,
	})
	h.handleServiceResponse(w, r, result, err, http.StatusOK)
}

// GetSaleHandler lida com GET /v1/sales/{id}.
// @Summary Busca uma venda
// @Tags sales
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID da venda"
// @Success 200 {object} domain.Sale
// @Failure 404 {object} domain.ErrorResponse
// @Router /sales/{id} [get]
func (h *Handler) GetSaleHandler(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Service.GetSale(r.Context(), r.PathValue("id"))
	h.handleServiceResponse(w, r, sale, err, http.StatusOK)
}

// CancelSaleHandler lida com POST /v1/sales/{id}/cancel.
// @Summary Cancela uma venda
// @Description Estorna o estoque quando a venda ainda o retém. Cancelar venda PAID exige admin.
// @Tags sales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID da venda"
// @Param body body ReasonRequest false "Motivo"
// @Success 200 {object} domain.Sale
// @Failure 403 {object} domain.ErrorResponse
// @Failure 409 {object} domain.ErrorResponse "Transição inválida"
// @Router /sales/{id}/cancel [post]
func (h *Handler) CancelSaleHandler(w http.ResponseWriter, r *http.Request) {
	reason, err := readReason(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	sale, err := h.Service.Cancel(r.Context(), r.PathValue("id"), action(r, reason, false))
	h.handleServiceResponse(w, r, sale, err, http.StatusOK)
}

// RefundSaleHandler lida com POST /v1/sales/{id}/refund.
// @Summary Reembolsa uma venda paga (admin)
// @Tags sales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID da venda"
// @Param body body ReasonRequest false "Motivo"
// @Success 200 {object} domain.Sale
// @Failure 403 {object} domain.ErrorResponse
// @Failure 409 {object} domain.ErrorResponse "Transição inválida"
// @Router /sales/{id}/refund [post]
func (h *Handler) RefundSaleHandler(w http.ResponseWriter, r *http.Request) {
	reason, err := readReason(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	sale, err := h.Service.Refund(r.Context(), r.PathValue("id"), action(r, reason, false))
	h.handleServiceResponse(w, r, sale, err, http.StatusOK)
}

// DeleteSaleHandler lida com DELETE /v1/sales/{id}.
// @Summary Exclui uma venda (admin)
// @Description Estorna o que ainda estiver consumido. Vendas finalizadas com consumo pendente exigem force=true.
// @Tags sales
// @Security BearerAuth
// @Param id path string true "ID da venda"
// @Param force query bool false "Força o estorno em venda finalizada"
// @Success 204
// @Failure 403 {object} domain.ErrorResponse
// @Failure 409 {object} domain.ErrorResponse
// @Router /sales/{id} [delete]
func (h *Handler) DeleteSaleHandler(w http.ResponseWriter, r *http.Request) {
	force, err := response.QueryBool(r, "force")
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusNoContent)
		return
	}
	err = h.Service.DeleteSale(r.Context(), r.PathValue("id"), action(r, "Exclusão da venda", force))
	h.handleServiceResponse(w, r, nil, err, http.StatusNoContent)
}

// readReason aceita corpo vazio.
func readReason(r *http.Request) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	var body ReasonRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", apperror.NewValidationError("Payload inválido. Verifique o formato JSON.")
	}
	return body.Reason, nil
}
