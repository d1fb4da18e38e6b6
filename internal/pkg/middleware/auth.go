package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/token"
)

// ContextKey é o tipo das chaves que este pacote grava no contexto.
type ContextKey int

const (
	UserClaimsKey ContextKey = iota
)

// UserClaims são os dados do usuário extraídos do JWT e anexados ao contexto.
type UserClaims struct {
	UserID string
	Role   domain.UserRole
}

// IsAdmin informa se o usuário pode executar ações administrativas.
func (c UserClaims) IsAdmin() bool {
	return c.Role == domain.RoleAdmin
}

// TokenService define o contrato de validação necessário para o middleware.
type TokenService interface {
	ValidateToken(tokenString string) (*token.CustomClaims, error)
}

// NewAuthMiddleware valida o Bearer token e anexa as claims ao contexto.
func NewAuthMiddleware(tokenSvc TokenService) func(next http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || tokenString == "" {
				writeError(w, apperror.NewUnauthorizedError("Token de autorização ausente ou malformado."))
				return
			}

			claims, err := tokenSvc.ValidateToken(tokenString)
			if err != nil {
				writeError(w, apperror.NewUnauthorizedError("Token inválido ou expirado."))
				return
			}

			ctx := WithUserClaims(r.Context(), UserClaims{
				UserID: claims.UserID,
				Role:   claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}

// WithUserClaims anexa claims ao contexto (também usado em testes de handler).
func WithUserClaims(ctx context.Context, claims UserClaims) context.Context {
	return context.WithValue(ctx, UserClaimsKey, claims)
}

// GetUserClaimsFromContext é uma função utilitária para extrair as claims no handler.
func GetUserClaimsFromContext(ctx context.Context) (UserClaims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(UserClaims)
	return claims, ok
}

// PermissionMiddleware libera o handler apenas para as roles informadas.
func PermissionMiddleware(requiredRoles ...domain.UserRole) func(next http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserClaimsFromContext(r.Context())
			if !ok {
				writeError(w, apperror.NewUnauthorizedError("Autorização necessária. Token não processado."))
				return
			}

			for _, requiredRole := range requiredRoles {
				if claims.Role == requiredRole {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apperror.NewForbiddenError("Você não tem a permissão necessária."))
		}
	}
}

// writeError usa o mesmo corpo {code, category, message} dos handlers.
func writeError(w http.ResponseWriter, err error) {
	status, category, message := apperror.MapToHTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":     status,
		"category": category,
		"message":  message,
	})
}
