package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// OrderNumberCounter is the name of the sequence behind order numbers.
const OrderNumberCounter = "orderNumber"

// Counter hands out monotonically increasing values. Next must be a single
// atomic increment-and-fetch at the storage layer.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

type SQLCounter struct {
	db *sql.DB
}

func NewSQLCounter(db *sql.DB) *SQLCounter {
	return &SQLCounter{db: db}
}

func (c *SQLCounter) Next(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, seq) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET seq = seq + 1
		RETURNING seq`, name).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return seq, nil
}

// Seed raises the counter to at least floor.
func (c *SQLCounter) Seed(ctx context.Context, name string, floor int64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO counters (name, seq) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET seq = MAX(seq, excluded.seq)`, name, floor)
	if err != nil {
		return fmt.Errorf("seed counter %s: %w", name, err)
	}
	return nil
}

type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "counter:"}
}

func (c *RedisCounter) Next(ctx context.Context, name string) (int64, error) {
	seq, err := c.client.Incr(ctx, c.prefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", name, err)
	}
	return seq, nil
}

// seedScript sets the key to floor only when the stored value is lower.
var seedScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if cur < floor then
  redis.call("SET", KEYS[1], floor)
  return floor
end
return cur
`)

// Seed raises the counter to at least floor, so a fresh redis never reissues
// numbers already stored in the database.
func (c *RedisCounter) Seed(ctx context.Context, name string, floor int64) error {
	if err := seedScript.Run(ctx, c.client, []string{c.prefix + name}, floor).Err(); err != nil {
		return fmt.Errorf("seed redis counter %s: %w", name, err)
	}
	return nil
}
