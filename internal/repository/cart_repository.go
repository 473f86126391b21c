package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mactabak/internal/domain"
)

// CartTTL is how long an abandoned cart is kept.
const CartTTL = 24 * time.Hour

type CartStore interface {
	Save(ctx context.Context, cart domain.Cart) error
	// Get returns domain.ErrNotFound for missing or expired carts.
	Get(ctx context.Context, userID int64) (domain.Cart, error)
	Clear(ctx context.Context, userID int64) error
}

type RedisCartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartRepository(client *redis.Client) *RedisCartRepository {
	return &RedisCartRepository{client: client, ttl: CartTTL}
}

func cartKey(userID int64) string {
	return "cart:" + strconv.FormatInt(userID, 10)
}

func (r *RedisCartRepository) Save(ctx context.Context, cart domain.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(cart.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (r *RedisCartRepository) Get(ctx context.Context, userID int64) (domain.Cart, error) {
	var cart domain.Cart
	raw, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart, fmt.Errorf("cart %d: %w", userID, domain.ErrNotFound)
		}
		return cart, fmt.Errorf("redis get cart: %w", err)
	}
	if err := json.Unmarshal(raw, &cart); err != nil {
		return cart, fmt.Errorf("unmarshal cart: %w", err)
	}
	return cart, nil
}

func (r *RedisCartRepository) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}

// SQLCartRepository keeps carts in SQLite when redis is not reachable.
type SQLCartRepository struct {
	db  *sql.DB
	ttl time.Duration
}

func NewSQLCartRepository(db *sql.DB) *SQLCartRepository {
	return &SQLCartRepository{db: db, ttl: CartTTL}
}

func (r *SQLCartRepository) Save(ctx context.Context, cart domain.Cart) error {
	raw, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, items, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at
	`, cart.UserID, string(raw), cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

func (r *SQLCartRepository) Get(ctx context.Context, userID int64) (domain.Cart, error) {
	cart := domain.Cart{UserID: userID}
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT items, updated_at FROM carts WHERE user_id = ?`, userID).
		Scan(&raw, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && time.Since(cart.UpdatedAt) > r.ttl) {
		return cart, fmt.Errorf("cart %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return cart, fmt.Errorf("select cart: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &cart.Items); err != nil {
		return cart, fmt.Errorf("unmarshal cart: %w", err)
	}
	return cart, nil
}

func (r *SQLCartRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
