package memrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

// Save insere um usuário. E-mail duplicado gera ConflictError.
func (s *Store) Save(ctx context.Context, user domain.User) (domain.User, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.users[key]; exists {
		return domain.User{}, apperror.NewConflictError(fmt.Sprintf("O email '%s' já está em uso.", user.Email))
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.users[key] = user
	return user, nil
}

// FindByEmail busca um usuário pelo e-mail.
func (s *Store) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	s.userMu.RLock()
	defer s.userMu.RUnlock()

	user, ok := s.users[strings.ToLower(email)]
	if !ok {
		return domain.User{}, &apperror.NotFoundError{Msg: fmt.Sprintf("Usuário com email '%s' não encontrado", email), Resource: "USER"}
	}
	return user, nil
}
