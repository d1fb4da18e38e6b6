package product

import (
	"context"
	"net/http"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/middleware"
)

// ProductService define o contrato que o Handler espera da camada de Serviço.
type ProductService interface {
	CreateProduct(ctx context.Context, req domain.ProductCreation) (domain.Product, error)
	GetProductByID(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error)
}

// Handler agrupa todos os métodos de Handler do produto.
type Handler struct {
	Service ProductService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc ProductService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Handle(w, r, h.Logger, data, err, successStatus)
}

// CreateProductHandler lida com a requisição POST /v1/products.
// @Summary Cadastra um produto
// @Description Cria o produto; initial_stock > 0 gera uma entrada ENTRY na localização informada (padrão LOJA).
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param product body domain.ProductCreation true "Dados do produto"
// @Success 201 {object} domain.Product
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 409 {object} domain.ErrorResponse "SKU já cadastrado"
// @Router /products [post]
func (h *Handler) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ProductCreation
	if err := response.DecodeJSON(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}
	if claims, ok := middleware.GetUserClaimsFromContext(ctx); ok {
		req.UserID = claims.UserID
	}

	newProduct, err := h.Service.CreateProduct(ctx, req)
	h.handleServiceResponse(w, r, newProduct, err, http.StatusCreated)
}

// GetProductByIDHandler lida com a requisição GET /v1/products/{id}.
// @Summary Busca um produto
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID do produto"
// @Success 200 {object} domain.Product
// @Failure 404 {object} domain.ErrorResponse "Produto não encontrado"
// @Router /products/{id} [get]
func (h *Handler) GetProductByIDHandler(w http.ResponseWriter, r *http.Request) {
	product, err := h.Service.GetProductByID(r.Context(), r.PathValue("id"))
	h.handleServiceResponse(w, r, product, err, http.StatusOK)
}

// ListProductsHandler lida com a requisição GET /v1/products.
// @Summary Lista produtos ativos
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param name query string false "Filtro por nome"
// @Param low_stock query bool false "Somente estoque abaixo do mínimo"
// @Param page query int false "Página"
// @Param limit query int false "Itens por página"
// @Success 200 {object} domain.ProductPage
// @Router /products [get]
func (h *Handler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := response.Pagination(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	lowStock, err := response.QueryBool(r, "low_stock")
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	result, err := h.Service.ListProducts(r.Context(), domain.ProductFilter{
		Name:         r.URL.Query().Get("name"),
		LowStockOnly: lowStock,
		Page:         page,
		Limit:        limit,
	})
	h.handleServiceResponse(w, r, result, err, http.StatusOK)
}
