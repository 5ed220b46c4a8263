package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
)

type AdminRepository struct {
	db *sql.DB
}

func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email cannot be empty", pkgerrors.ErrInvalidInput)
	}
	query := `SELECT id, email, password_hash, role, created_at FROM admins WHERE email = $1`
	return r.get(ctx, query, email)
}

func (r *AdminRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	query := `SELECT id, email, password_hash, role, created_at FROM admins WHERE id = $1`
	return r.get(ctx, query, id)
}

func (r *AdminRepository) get(ctx context.Context, query string, arg any) (*models.Admin, error) {
	var a models.Admin
	err := conn(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.CreatedAt,
	)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrAdminNotFound
	case err != nil:
		slog.Error("failed to get admin", "error", err)
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &a, nil
}
