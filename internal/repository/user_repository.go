package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mactabak/internal/domain"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Touch registers the user on first contact and refreshes profile and activity after.
func (r *UserRepository) Touch(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
		  username = excluded.username,
		  first_name = excluded.first_name,
		  last_name = excluded.last_name,
		  last_activity = excluded.last_activity
	`, u.TelegramID, u.Username, u.FirstName, u.LastName, u.LastActivity, u.LastActivity)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// SaveData overwrites the checkout autofill of the user.
func (r *UserRepository) SaveData(ctx context.Context, telegramID int64, d domain.SavedData) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
		  telegram_id, saved_full_name, saved_phone, saved_email, saved_city, saved_region,
		  saved_address, preferred_delivery, last_activity, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
		  saved_full_name = excluded.saved_full_name,
		  saved_phone = excluded.saved_phone,
		  saved_email = excluded.saved_email,
		  saved_city = excluded.saved_city,
		  saved_region = excluded.saved_region,
		  saved_address = excluded.saved_address,
		  preferred_delivery = excluded.preferred_delivery,
		  last_activity = excluded.last_activity
	`, telegramID, d.FullName, d.Phone, d.Email, d.City, d.Region, d.Address, d.PreferredDelivery, now, now)
	if err != nil {
		return fmt.Errorf("save user data: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, telegramID int64) (domain.User, error) {
	var (
		u            domain.User
		lastActivity sql.NullTime
		createdAt    sql.NullTime
	)
	d := &u.SavedData
	err := r.db.QueryRowContext(ctx, `
		SELECT telegram_id, username, first_name, last_name, saved_full_name, saved_phone,
		       saved_email, saved_city, saved_region, saved_address, preferred_delivery,
		       last_activity, created_at
		FROM users WHERE telegram_id = ?`, telegramID).Scan(
		&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &d.FullName, &d.Phone,
		&d.Email, &d.City, &d.Region, &d.Address, &d.PreferredDelivery, &lastActivity, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, fmt.Errorf("user %d: %w", telegramID, domain.ErrNotFound)
		}
		return u, fmt.Errorf("select user: %w", err)
	}
	u.LastActivity = lastActivity.Time
	u.CreatedAt = createdAt.Time
	return u, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
