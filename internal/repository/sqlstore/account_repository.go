package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"slidedrop/internal/repository"
)

// AccountRepository 从 profiles 表读取订阅等级。
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) Tier(ctx context.Context, userID string) (string, error) {
	var tier string
	err := r.db.QueryRowContext(ctx, `SELECT tier FROM profiles WHERE user_id = $1`, userID).Scan(&tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return tier, nil
}
