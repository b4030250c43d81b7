package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
)

const (
	// ChannelPrefix is the Redis Pub/Sub channel prefix; one channel per
	// session so the websocket relay can subscribe per watcher.
	ChannelPrefix = "bid_events:"

	// SubjectPrefix is the JetStream subject prefix for archival.
	SubjectPrefix = "bid.events."

	streamName = "BID_EVENTS"
)

// Relay publishes each event twice: JSON to Redis Pub/Sub for the realtime
// websocket layer, and a CBOR envelope to NATS JetStream for settlement and
// archival consumers.
type Relay struct {
	redis *redis.Client
	nats  *nats.Conn
	js    jetstream.JetStream
}

// RelayConfig carries the transport endpoints.
type RelayConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
}

// NewRelay connects both transports and ensures the archival stream exists.
func NewRelay(ctx context.Context, cfg RelayConfig) (*Relay, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCtx, cancelStream := context.WithTimeout(ctx, 10*time.Second)
	defer cancelStream()
	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Stream for bidding event archival and settlement",
		Subjects:    []string{SubjectPrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &Relay{redis: rdb, nats: nc, js: js}, nil
}

// Publish delivers the event to both transports. Redis delivery is
// best-effort realtime; JetStream delivery is the durable record, so its
// failure fails the publish.
func (r *Relay) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.EventID, err)
	}

	channel := ChannelPrefix + event.SessionID
	if err := r.redis.Publish(ctx, channel, payload).Err(); err != nil {
		// Realtime fan-out failing must not block settlement.
		log.Printf("WARNING: redis publish to %s failed: %v", channel, err)
	}

	encoded, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	subject := SubjectPrefix + event.SessionID
	if _, err := r.js.Publish(ctx, subject, encoded); err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.EventID, subject, err)
	}
	return nil
}

// Close releases both transport connections.
func (r *Relay) Close() error {
	r.nats.Close()
	return r.redis.Close()
}
