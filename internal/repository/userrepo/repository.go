package userrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

const (
	insertUserSQL = `INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
                     VALUES ($1, $2, $3, $4, $5, $6)`
	findByEmailSQL = `SELECT id, email, password_hash, role, created_at, updated_at FROM users WHERE LOWER(email) = $1`
)

// UserRepository implementa domain.UserRepository sobre PostgreSQL.
type UserRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewUserRepository cria uma nova instância do UserRepository, injetando o DB.
func NewUserRepository(db *sql.DB, dbTimeout time.Duration, log logger.Logger) *UserRepository {
	return &UserRepository{DB: db, DBTimeout: dbTimeout, logger: log}
}

// Save insere um novo usuário. E-mail duplicado vira ConflictError.
func (r *UserRepository) Save(ctx context.Context, user domain.User) (domain.User, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	user.ID = uuid.NewString()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	_, err := r.DB.ExecContext(ctxTimeout, insertUserSQL,
		user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.User{}, apperror.NewConflictError(fmt.Sprintf("O email '%s' já está em uso.", user.Email))
		}
		r.logger.Error("Falha ao inserir usuário no DB.", err)
		return domain.User{}, apperror.NewDBError("Falha ao inserir usuário", err)
	}

	r.logger.Info("Usuário salvo.", map[string]interface{}{"user_id": user.ID, "role": user.Role})
	return user, nil
}

// FindByEmail busca um usuário pelo e-mail, sem diferenciar maiúsculas.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	var user domain.User
	err := r.DB.QueryRowContext(ctxTimeout, findByEmailSQL, strings.ToLower(strings.TrimSpace(email))).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug("Usuário não encontrado por email.", map[string]interface{}{"email": email})
			return domain.User{}, &apperror.NotFoundError{Msg: fmt.Sprintf("Usuário com email '%s' não encontrado", email), Resource: "USER"}
		}
		r.logger.Error("Falha ao buscar usuário por email no DB.", err)
		return domain.User{}, apperror.NewDBError("Falha ao buscar usuário", err)
	}
	return user, nil
}
