package stock

import (
	"context"
	"net/http"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/middleware"
)

// StockService define o contrato que o Handler espera da camada de Serviço.
type StockService interface {
	AddStock(ctx context.Context, req domain.StockOperationRequest) (domain.StockCounters, error)
	RemoveStock(ctx context.Context, req domain.StockOperationRequest) (domain.StockCounters, error)
	RegisterLoss(ctx context.Context, req domain.StockOperationRequest) (domain.StockCounters, error)
	AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockCounters, error)
	TransferStock(ctx context.Context, req domain.StockTransferRequest) (domain.StockCounters, error)
	GetStock(ctx context.Context, productID string) (domain.StockCounters, error)
	GetHistory(ctx context.Context, productID string, page, limit int) (domain.MovementPage, error)
}

// StockResponse são os contadores de um produto após a operação.
type StockResponse struct {
	ProductID string `json:"product_id"`
	domain.StockCounters
}

// Handler agrupa todos os métodos de Handler de estoque.
type Handler struct {
	Service StockService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc StockService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Handle(w, r, h.Logger, data, err, successStatus)
}

func (h *Handler) counters(w http.ResponseWriter, r *http.Request, productID string, c domain.StockCounters, err error) {
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	h.handleServiceResponse(w, r, StockResponse{ProductID: productID, StockCounters: c}, nil, http.StatusOK)
}

func userID(r *http.Request) string {
	claims, _ := middleware.GetUserClaimsFromContext(r.Context())
	return claims.UserID
}

// GetStockHandler lida com GET /v1/products/{id}/stock.
// @Summary Contadores de estoque por localização
// @Tags stock
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Success 200 {object} StockResponse
// @Failure 404 {object} domain.ErrorResponse
// @Router /products/{id}/stock [get]
func (h *Handler) GetStockHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := h.Service.GetStock(r.Context(), id)
	h.counters(w, r, id, c, err)
}

// GetMovementsHandler lida com GET /v1/products/{id}/movements.
// @Summary Histórico de movimentações (mais recente primeiro)
// @Tags stock
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Param page query int false "Página"
// @Param limit query int false "Itens por página"
// @Success 200 {object} domain.MovementPage
// @Router /products/{id}/movements [get]
func (h *Handler) GetMovementsHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := response.Pagination(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	result, err := h.Service.GetHistory(r.Context(), r.PathValue("id"), page, limit)
	h.handleServiceResponse(w, r, result, err, http.StatusOK)
}

// AddStockHandler lida com POST /v1/products/{id}/stock/add.
// @Summary Entrada de estoque
// @Tags stock
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Param body body domain.StockOperationRequest true "Quantidade, localização e motivo"
// @Success 200 {object} StockResponse
// @Failure 400 {object} domain.ErrorResponse
// @Router /products/{id}/stock/add [post]
func (h *Handler) AddStockHandler(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, h.Service.AddStock)
}

// RemoveStockHandler lida com POST /v1/products/{id}/stock/remove.
// @Summary Saída de estoque
// @Tags stock
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Param body body domain.StockOperationRequest true "Quantidade, localização e motivo"
// @Success 200 {object} StockResponse
// @Failure 409 {object} domain.ErrorResponse "Estoque insuficiente"
// @Router /products/{id}/stock/remove [post]
func (h *Handler) RemoveStockHandler(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, h.Service.RemoveStock)
}

// RegisterLossHandler lida com POST /v1/products/{id}/stock/loss.
// @Summary Registro de perda
// @Tags stock
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Param body body domain.StockOperationRequest true "Quantidade, localização e motivo"
// @Success 200 {object} StockResponse
// @Failure 409 {object} domain.ErrorResponse "Estoque insuficiente"
// @Router /products/{id}/stock/loss [post]
func (h *Handler) RegisterLossHandler(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, h.Service.RegisterLoss)
}

func (h *Handler) operation(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.StockOperationRequest) (domain.StockCounters, error)) {
	var req domain.StockOperationRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	req.ProductID = r.PathValue("id")
	req.UserID = userID(r)

	c, err := fn(r.Context(), req)
	h.counters(w, r, req.ProductID, c, err)
}

// AdjustStockHandler lida com POST /v1/products/{id}/stock/adjust.
// @Summary Ajuste de inventário (delta com sinal)
// @Tags stock
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Param body body domain.StockAdjustmentRequest true "Delta, localização e motivo"
// @Success 200 {object} StockResponse
// @Failure 409 {object} domain.ErrorResponse "Estoque ficaria negativo"
// @Router /products/{id}/stock/adjust [post]
func (h *Handler) AdjustStockHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	req.ProductID = r.PathValue("id")
	req.UserID = userID(r)

	c, err := h.Service.AdjustStock(r.Context(), req)
	h.counters(w, r, req.ProductID, c, err)
}

// TransferStockHandler lida com POST /v1/products/{id}/stock/transfer.
// @Summary Transferência entre LOJA e ARMAZEM
// @Tags stock
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Param body body domain.StockTransferRequest true "Quantidade, origem, destino e motivo"
// @Success 200 {object} StockResponse
// @Failure 400 {object} domain.ErrorResponse "Origem igual ao destino"
// @Failure 409 {object} domain.ErrorResponse "Estoque insuficiente na origem"
// @Router /products/{id}/stock/transfer [post]
func (h *Handler) TransferStockHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.StockTransferRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	req.ProductID = r.PathValue("id")
	req.UserID = userID(r)

	c, err := h.Service.TransferStock(r.Context(), req)
	h.counters(w, r, req.ProductID, c, err)
}
