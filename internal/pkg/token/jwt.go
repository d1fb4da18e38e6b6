package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"goloja/internal/domain"
)

// Issuer identifica os tokens emitidos pela API do GoLoja.
const Issuer = "goloja-api"

// CustomClaims carrega o usuário e o seu papel (admin ou seller).
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Role   domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Service emite e valida JWTs HS256 com o segredo de JWT_SECRET_KEY.
type Service struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewService cria uma nova instância do serviço Token.
func NewService(secretKey string, expiry time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		expiry:    expiry,
		now:       time.Now,
	}
}

// GenerateToken assina um token para o usuário. Papéis desconhecidos são recusados.
func (s *Service) GenerateToken(userID string, role domain.UserRole) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("papel de usuário desconhecido: '%s'", role)
	}

	issuedAt := s.now()
	claims := CustomClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("falha ao assinar o token: %w", err)
	}
	return signed, nil
}

// ValidateToken confere assinatura, emissor e validade, e exige um papel conhecido.
func (s *Service) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("token inválido: %w", err)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("token inválido: papel '%s' desconhecido", claims.Role)
	}
	return claims, nil
}
