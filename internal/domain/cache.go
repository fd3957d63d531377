package domain

import (
	"context"
	"time"
)

// LockManager provides distributed keyed locks. Lock keys name the
// serialization domains of the system: "balance:{user}:{asset}",
// "stake:{user}:{asset}", and "pair:{base}/{quote}". Operations inside one
// domain run to completion before the next begins; different domains proceed
// in parallel.
type LockManager interface {
	// Acquire attempts to take the lock, returning an unlock function on
	// success or ErrLockHeld when another party holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
	// AcquireWait blocks until the lock is obtained or ctx is done.
	AcquireWait(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// PriceCache caches oracle prices per (asset, fiat) with a bounded lifetime
// so display conversions and swap cross-rates do not hammer the upstream API.
type PriceCache interface {
	SetPrice(ctx context.Context, asset, fiat string, price float64, ts time.Time) error
	// GetPrice returns ErrNotFound when no fresh price is cached.
	GetPrice(ctx context.Context, asset, fiat string) (float64, time.Time, error)
}

// RateLimiter bounds how often a keyed operation may run inside a rolling
// window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage is a single entry read from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus publishes ledger events (transfers, stakes, trades, order state
// changes) for WebSocket relays and other observers. Publish is ephemeral
// pub/sub; StreamAppend keeps a bounded durable trail.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// PriceSource is the external price oracle: amount of fiat per one unit of
// asset. Implementations report ErrPriceUnavailable for unknown assets or
// upstream failures.
type PriceSource interface {
	GetPrice(ctx context.Context, asset, fiat string) (float64, error)
}
