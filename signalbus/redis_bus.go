package signalbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/domain"
)

// RedisBus implements Bus on a redis client: the flag is stored under a key
// for late consumers and published on a channel for live ones.
type RedisBus struct {
	client *redis.Client
	prefix string
}

// NewRedisBus creates a new RedisBus. prefix namespaces the key and channel.
func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "trustgate"
	}
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) flagKey() string {
	return fmt.Sprintf("%s:signout:flag", b.prefix)
}

func (b *RedisBus) channel() string {
	return fmt.Sprintf("%s:signout", b.prefix)
}

// Publish stores the flag and notifies subscribers. The store happens first
// so a consumer woken by the notification always finds the flag.
func (b *RedisBus) Publish(ctx context.Context, flag domain.RemoteSignOutFlag) error {
	payload, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("marshal sign-out flag: %w", err)
	}
	if err := b.client.Set(ctx, b.flagKey(), payload, 0).Err(); err != nil {
		return fmt.Errorf("store sign-out flag: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(), payload).Err(); err != nil {
		return fmt.Errorf("publish sign-out flag: %w", err)
	}
	return nil
}

// Subscribe delivers future flags to fn until the returned stop function is
// called or ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(domain.RemoteSignOutFlag)) (func(), error) {
	sub := b.client.Subscribe(ctx, b.channel())
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to sign-out channel: %w", err)
	}

	go func() {
		for msg := range sub.Channel() {
			var flag domain.RemoteSignOutFlag
			if err := json.Unmarshal([]byte(msg.Payload), &flag); err != nil {
				log.Warn().Err(err).Msg("Malformed sign-out flag on bus, dropping")
				continue
			}
			fn(flag)
		}
	}()

	return func() { _ = sub.Close() }, nil
}

// Consume reads and clears the stored flag atomically (GETDEL), so exactly
// one surface renders the sign-out reason.
func (b *RedisBus) Consume(ctx context.Context) (*domain.RemoteSignOutFlag, error) {
	payload, err := b.client.GetDel(ctx, b.flagKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume sign-out flag: %w", err)
	}
	var flag domain.RemoteSignOutFlag
	if err := json.Unmarshal([]byte(payload), &flag); err != nil {
		return nil, fmt.Errorf("decode sign-out flag: %w", err)
	}
	return &flag, nil
}
