package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError é a interface central para todos os erros customizados do GoLoja.
// Ela permite que o código externo (Handler) acesse a Categoria e a Mensagem do erro.
type AppError interface {
	Error() string    // Implementa a interface error padrão do Go
	Category() string // Categoria do erro (e.g., "VALIDATION_ERROR", "INSUFFICIENT_STOCK")
	HTTPStatus() int  // Código HTTP sugerido para o Handler
	Unwrap() error    // Permite encapsular erros subjacentes (original error)
}

// --- Tipos de Erro Específicos (Erros de Domínio) ---

// ValidationError representa falhas de validação de dados de entrada.
// Kind refina a categoria (ex: "INVALID_PAYMENT_METHOD"); vazio significa validação genérica.
type ValidationError struct {
	Msg  string
	Kind string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("Erro de Validação: %s", e.Msg) }
func (e *ValidationError) Category() string {
	if e.Kind != "" {
		return e.Kind
	}
	return "VALIDATION_ERROR"
}
func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest } // 400
func (e *ValidationError) Unwrap() error   { return nil }

// NewValidationError cria um novo erro de validação.
func NewValidationError(msg string) AppError {
	return &ValidationError{Msg: msg}
}

// NewInvalidPaymentMethodError sinaliza um método de pagamento desconhecido ou indisponível.
func NewInvalidPaymentMethodError(method string) AppError {
	return &ValidationError{
		Msg:  fmt.Sprintf("Método de pagamento inválido: '%s'", method),
		Kind: "INVALID_PAYMENT_METHOD",
	}
}

// NotFoundError representa a ausência de um recurso solicitado.
type NotFoundError struct {
	Msg      string
	Resource string // PRODUCT, SALE, LEAD, USER...
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("Recurso não encontrado: %s", e.Msg) }
func (e *NotFoundError) Category() string {
	if e.Resource != "" {
		return e.Resource + "_NOT_FOUND"
	}
	return "NOT_FOUND"
}
func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound } // 404
func (e *NotFoundError) Unwrap() error   { return nil }

// NewNotFoundError cria um novo erro de recurso não encontrado.
func NewNotFoundError(msg string) AppError {
	return &NotFoundError{Msg: msg}
}

// NewProductNotFoundError é o atalho para produto inexistente.
func NewProductNotFoundError(id string) AppError {
	return &NotFoundError{Msg: fmt.Sprintf("Produto com ID %s não existe.", id), Resource: "PRODUCT"}
}

// NewSaleNotFoundError é o atalho para venda inexistente.
func NewSaleNotFoundError(id string) AppError {
	return &NotFoundError{Msg: fmt.Sprintf("Venda com ID %s não existe.", id), Resource: "SALE"}
}

// ConflictError representa um conflito na regra de negócio (e.g., OCC, recurso duplicado).
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string    { return fmt.Sprintf("Conflito de estado: %s", e.Msg) }
func (e *ConflictError) Category() string { return "CONFLICT" }
func (e *ConflictError) HTTPStatus() int  { return http.StatusConflict } // 409
func (e *ConflictError) Unwrap() error    { return nil }

// NewConflictError cria um novo erro de conflito (usado em OCC).
func NewConflictError(msg string) AppError {
	return &ConflictError{Msg: msg}
}

// InsufficientStockError indica que a localização não tem unidades suficientes.
type InsufficientStockError struct {
	ProductID string
	Location  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Estoque insuficiente em %s: disponível %d, solicitado %d", e.Location, e.Available, e.Requested)
}
func (e *InsufficientStockError) Category() string { return "INSUFFICIENT_STOCK" }
func (e *InsufficientStockError) HTTPStatus() int  { return http.StatusConflict } // 409
func (e *InsufficientStockError) Unwrap() error    { return nil }

// NewInsufficientStockError cria o erro de estoque insuficiente.
func NewInsufficientStockError(productID, location string, available, requested int) AppError {
	return &InsufficientStockError{ProductID: productID, Location: location, Available: available, Requested: requested}
}

// InvalidLocationError cobre localização desconhecida ou origem igual ao destino.
type InvalidLocationError struct {
	Msg string
}

func (e *InvalidLocationError) Error() string    { return fmt.Sprintf("Localização inválida: %s", e.Msg) }
func (e *InvalidLocationError) Category() string { return "INVALID_LOCATION" }
func (e *InvalidLocationError) HTTPStatus() int  { return http.StatusBadRequest } // 400
func (e *InvalidLocationError) Unwrap() error    { return nil }

// NewInvalidLocationError cria o erro de localização inválida.
func NewInvalidLocationError(msg string) AppError {
	return &InvalidLocationError{Msg: msg}
}

// InvalidStateTransitionError indica uma transição não permitida na máquina de estados da venda.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("Transição de status inválida: %s -> %s", e.From, e.To)
}
func (e *InvalidStateTransitionError) Category() string { return "INVALID_STATE_TRANSITION" }
func (e *InvalidStateTransitionError) HTTPStatus() int  { return http.StatusConflict } // 409
func (e *InvalidStateTransitionError) Unwrap() error    { return nil }

// NewInvalidStateTransitionError cria o erro de transição inválida.
func NewInvalidStateTransitionError(from, to string) AppError {
	return &InvalidStateTransitionError{From: from, To: to}
}

// UnauthorizedError representa credenciais ausentes ou inválidas.
type UnauthorizedError struct {
	Msg string
}

func (e *UnauthorizedError) Error() string    { return fmt.Sprintf("Não autorizado: %s", e.Msg) }
func (e *UnauthorizedError) Category() string { return "UNAUTHORIZED" }
func (e *UnauthorizedError) HTTPStatus() int  { return http.StatusUnauthorized } // 401
func (e *UnauthorizedError) Unwrap() error    { return nil }

// NewUnauthorizedError cria um erro 401.
func NewUnauthorizedError(msg string) AppError {
	return &UnauthorizedError{Msg: msg}
}

// ForbiddenError representa um usuário autenticado sem a permissão necessária.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string    { return fmt.Sprintf("Acesso negado: %s", e.Msg) }
func (e *ForbiddenError) Category() string { return "FORBIDDEN" }
func (e *ForbiddenError) HTTPStatus() int  { return http.StatusForbidden } // 403
func (e *ForbiddenError) Unwrap() error    { return nil }

// NewForbiddenError cria um erro 403.
func NewForbiddenError(msg string) AppError {
	return &ForbiddenError{Msg: msg}
}

// --- Tipos de Erro de Infraestrutura (Encapsulamento) ---

// GatewayError encapsula qualquer falha do gateway de pagamento (timeout, 4xx/5xx, resposta malformada).
type GatewayError struct {
	Gateway string
	Msg     string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Falha no gateway %s: %s: %v", e.Gateway, e.Msg, e.Err)
	}
	return fmt.Sprintf("Falha no gateway %s: %s", e.Gateway, e.Msg)
}
func (e *GatewayError) Category() string { return "GATEWAY_ERROR" }
func (e *GatewayError) HTTPStatus() int  { return http.StatusBadGateway } // 502
func (e *GatewayError) Unwrap() error    { return e.Err }

// NewGatewayError cria um erro de gateway de pagamento.
func NewGatewayError(gateway, msg string, err error) AppError {
	return &GatewayError{Gateway: gateway, Msg: msg, Err: err}
}

// InternalError representa falhas inesperadas no servidor, serviço ou repositório.
type InternalError struct {
	Msg string
	Err error // Erro original subjacente (e.g., erro do driver SQL)
}

func (e *InternalError) Error() string    { return fmt.Sprintf("Erro Interno: %s", e.Msg) }
func (e *InternalError) Category() string { return "INTERNAL_ERROR" }
func (e *InternalError) HTTPStatus() int  { return http.StatusInternalServerError } // 500
func (e *InternalError) Unwrap() error    { return e.Err }

// NewInternalError cria um erro de servidor (para falhas de lógica ou código não esperado).
func NewInternalError(msg string, err error) AppError {
	return &InternalError{Msg: msg, Err: err}
}

// NewDBError é um atalho para criar um InternalError específico de falhas no DB.
func NewDBError(msg string, err error) AppError {
	return NewInternalError(fmt.Sprintf("%s (DB): %s", msg, err.Error()), err)
}

// --- Helper para o Handler (Tradução Final) ---

// MapToHTTPStatus recebe um erro e o traduz para o código HTTP e corpo de resposta.
// Erros embrulhados com fmt.Errorf("%w") também são reconhecidos.
func MapToHTTPStatus(err error) (int, string, string) {
	var appErr AppError
	if stderrors.As(err, &appErr) {
		return appErr.HTTPStatus(), appErr.Category(), appErr.Error()
	}

	// Erro não tipado: tratar como erro interno genérico.
	return http.StatusInternalServerError, "UNKNOWN_ERROR", "Ocorreu um erro inesperado."
}

// IsAppError informa se err (ou algo que ele embrulha) já é um AppError.
func IsAppError(err error) bool {
	var appErr AppError
	return stderrors.As(err, &appErr)
}
