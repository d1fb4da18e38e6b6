package user

import (
	"context"
	"net/http"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
)

// UserService define o contrato para as operações de registro e login.
type UserService interface {
	Register(ctx context.Context, registration domain.UserRegistration) (domain.User, error)
	Login(ctx context.Context, email string, password string) (string, error)
}

// LoginRequest representa o payload de entrada para o login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler agrupa todos os métodos de Handler do usuário.
type Handler struct {
	Service UserService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc UserService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Handle(w, r, h.Logger, data, err, successStatus)
}

// RegisterUserHandler lida com a requisição POST /v1/register.
// @Summary Registra um vendedor
// @Description Cria um usuário com papel seller. O administrador é criado na subida (SEED_ADMIN_*).
// @Tags users
// @Accept json
// @Produce json
// @Param registration body domain.UserRegistration true "Credenciais de registro (email e senha)"
// @Success 201 {object} domain.User "Usuário criado com sucesso"
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 409 {object} domain.ErrorResponse "Email já cadastrado"
// @Router /register [post]
func (h *Handler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var reg domain.UserRegistration
	if err := response.DecodeJSON(r, &reg); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	newUser, err := h.Service.Register(r.Context(), reg)
	h.handleServiceResponse(w, r, newUser, err, http.StatusCreated)
}

// LoginUserHandler lida com a requisição POST /v1/login.
// @Summary Autentica um usuário e retorna um JWT
// @Tags users
// @Accept json
// @Produce json
// @Param login body LoginRequest true "Credenciais do usuário (email e senha)"
// @Success 200 {object} map[string]string "Token JWT emitido"
// @Failure 401 {object} domain.ErrorResponse "Credenciais inválidas"
// @Router /login [post]
func (h *Handler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var loginReq LoginRequest
	if err := response.DecodeJSON(r, &loginReq); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	token, err := h.Service.Login(r.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	h.handleServiceResponse(w, r, map[string]string{"token": token}, nil, http.StatusOK)
}
