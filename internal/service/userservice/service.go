package userservice

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/token"
)

const minPasswordLength = 6

// UserService cuida de cadastro, login e do administrador inicial.
type UserService struct {
	UserRepo domain.UserRepository
	TokenSvc TokenService
	logger   logger.Logger
}

// TokenService é o contrato da camada de token (internal/pkg/token)
type TokenService interface {
	GenerateToken(userID string, role domain.UserRole) (string, error)
	ValidateToken(tokenString string) (*token.CustomClaims, error)
}

// NewService cria uma nova instância do UserService.
func NewService(repo domain.UserRepository, tokenSvc TokenService, log logger.Logger) *UserService {
	return &UserService{UserRepo: repo, TokenSvc: tokenSvc, logger: log}
}

// Register cadastra um vendedor. Administradores só nascem via EnsureAdmin.
func (s *UserService) Register(ctx context.Context, registration domain.UserRegistration) (domain.User, error) {
	if err := validateCredentials(registration.Email, registration.Password); err != nil {
		return domain.User{}, err
	}
	return s.create(ctx, registration.Email, registration.Password, domain.RoleSeller)
}

// EnsureAdmin cria o administrador configurado se ele ainda não existir.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (domain.User, error) {
	existing, err := s.UserRepo.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	var notFound *apperror.NotFoundError
	if !errors.As(err, &notFound) {
		return domain.User{}, err
	}
	if err := validateCredentials(email, password); err != nil {
		return domain.User{}, err
	}

	user, err := s.create(ctx, email, password, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info("Administrador inicial criado.", map[string]interface{}{"user_id": user.ID})
	return user, nil
}

func (s *UserService) create(ctx context.Context, email, password string, role domain.UserRole) (domain.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, apperror.NewInternalError("Falha ao gerar hash da senha.", err)
	}

	now := time.Now()
	return s.UserRepo.Save(ctx, domain.User{
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hashedPassword),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// Login autentica um usuário, verifica a senha e gera um JWT.
func (s *UserService) Login(ctx context.Context, email string, password string) (string, error) {
	if email == "" || password == "" {
		return "", apperror.NewUnauthorizedError("Email e senha são obrigatórios.")
	}

	user, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		// Não revelamos se o e-mail existe.
		var notFoundErr *apperror.NotFoundError
		if errors.As(err, &notFoundErr) {
			return "", apperror.NewUnauthorizedError("Credenciais inválidas.")
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Senha incorreta no login.", map[string]interface{}{"user_id": user.ID})
		return "", apperror.NewUnauthorizedError("Credenciais inválidas.")
	}

	tokenString, err := s.TokenSvc.GenerateToken(user.ID, user.Role)
	if err != nil {
		return "", apperror.NewInternalError("Falha ao gerar token de autenticação.", err)
	}
	return tokenString, nil
}

func validateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return apperror.NewValidationError("Email e senha são obrigatórios.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperror.NewValidationError("Email inválido.")
	}
	if len(password) < minPasswordLength {
		return apperror.NewValidationError("A senha deve ter pelo menos 6 caracteres.")
	}
	return nil
}
