// Package cachebus broadcasts permission cache invalidations between API processes over Redis pub/sub.
package cachebus

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
)

var errBadMessage = errors.New("malformed invalidation message")

// Invalidator is the local cache a Bus keeps in sync.
type Invalidator interface {
	InvalidateUser(userID int64)
	InvalidateAll()
}

// Bus publishes "<origin>:<user id>" messages, user id 0 meaning everyone.
// A process ignores its own messages, it already invalidated locally.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  core.Logger
}

var _ role.InvalidationPublisher = (*Bus)(nil) // interface compliance check

// New connects to Redis. It returns nil, nil when no address is configured.
func New(ctx context.Context, conf core.RedisConfig, logger core.Logger) (*Bus, error) {
	if conf.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return newBus(client, conf.Channel, logger), nil
}

func newBus(client *redis.Client, channel string, logger core.Logger) *Bus {
	if channel == "" {
		channel = "dossie:permissions"
	}
	return &Bus{client: client, channel: channel, origin: uuid.New().String(), logger: logger}
}

func (b *Bus) encode(userID int64) string {
	return b.origin + ":" + strconv.FormatInt(userID, 10)
}

func decode(payload string) (origin string, userID int64, err error) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 {
		return "", 0, errBadMessage
	}
	userID, err = strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil || userID < 0 {
		return "", 0, errBadMessage
	}
	return payload[:i], userID, nil
}

func (b *Bus) PublishInvalidation(ctx context.Context, userID int64) error {
	return errors.Wrap(b.client.Publish(ctx, b.channel, b.encode(userID)).Err(), "publishing invalidation")
}

// handle applies one message to inv, reporting whether it did anything.
func (b *Bus) handle(payload string, inv Invalidator) bool {
	origin, userID, err := decode(payload)
	if err != nil {
		b.logger.Warn("cache bus", err, map[string]interface{}{"payload": payload})
		return false
	}
	if origin == b.origin {
		return false
	}
	if userID == 0 {
		inv.InvalidateAll()
	} else {
		inv.InvalidateUser(userID)
	}
	return true
}

// Listen applies the invalidations of other processes to inv until ctx is done.
func (b *Bus) Listen(ctx context.Context, inv Invalidator) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribing to "+b.channel)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload, inv)
		}
	}
}

func (b *Bus) Close() error {
	return b.client.Close()
}
