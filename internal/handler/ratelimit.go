package handler

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type userLimiter struct {
	burst    *rate.Limiter
	flood    *rate.Limiter
	lastSeen time.Time
}

// RateLimiter drops updates from users that send more than 10 messages a
// second or 30 a minute.
type RateLimiter struct {
	logger *zap.Logger
	mu     sync.Mutex
	users  map[int64]*userLimiter
	idle   time.Duration
	now    func() time.Time
}

func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		logger: logger,
		users:  make(map[int64]*userLimiter),
		idle:   10 * time.Minute,
		now:    time.Now,
	}
}

func (l *RateLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{
			burst: rate.NewLimiter(rate.Limit(10), 10),
			flood: rate.NewLimiter(rate.Every(2*time.Second), 30),
		}
		l.users[userID] = u
		if len(l.users) > 1024 {
			l.prune(now)
		}
	}
	u.lastSeen = now
	return u.burst.AllowN(now, 1) && u.flood.AllowN(now, 1)
}

func (l *RateLimiter) prune(now time.Time) {
	for id, u := range l.users {
		if now.Sub(u.lastSeen) > l.idle {
			delete(l.users, id)
		}
	}
}

func (l *RateLimiter) Middleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.Message != nil && update.Message.From != nil {
			if !l.Allow(update.Message.From.ID) {
				l.logger.Info("rate limit exceeded", zap.Int64("user_id", update.Message.From.ID))
				return
			}
		}
		next(ctx, b, update)
	}
}
