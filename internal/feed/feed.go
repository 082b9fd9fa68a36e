// Package feed broadcasts encoded telemetry updates to dashboard
// subscribers over WebSocket. Positional wire tuples leave the process
// here, realized as JSON arrays; one-way digests are only ever output.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CYBAI/substrate-telemetry/internal/metrics"
)

// Feed actions.
const (
	ActionAdded    = "added"
	ActionRemoved  = "removed"
	ActionStats    = "stats"
	ActionIO       = "io"
	ActionHardware = "hardware"
	ActionLocation = "location"
	ActionBlock    = "block"
)

// Message is one dashboard feed entry. Payload is either a named-field
// object (node details) or a positional tuple serialized as a JSON array.
type Message struct {
	Action  string `json:"action"`
	NodeID  uint64 `json:"node_id"`
	Payload any    `json:"payload,omitempty"`
}

const writeTimeout = 10 * time.Second

// Broadcaster fans feed messages out to WebSocket subscribers. Slow
// subscribers have messages dropped rather than stalling the rest.
type Broadcaster struct {
	logger zerolog.Logger
	buffer int

	mu   sync.Mutex
	subs map[uuid.UUID]chan []byte
}

// NewBroadcaster creates a broadcaster whose per-subscriber send queue
// holds buffer messages.
func NewBroadcaster(logger zerolog.Logger, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		logger: logger.With().Str("component", "feed").Logger(),
		buffer: buffer,
		subs:   make(map[uuid.UUID]chan []byte),
	}
}

// Broadcast serializes msg once and queues it to every subscriber.
func (b *Broadcaster) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("action", msg.Action).Msg("failed to marshal feed message")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- data:
		default:
			metrics.FeedDropped.Inc()
			b.logger.Warn().Str("subscriber", id.String()).Msg("feed queue full, dropping message")
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) subscribe() (uuid.UUID, chan []byte) {
	id := uuid.New()
	ch := make(chan []byte, b.buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	metrics.FeedSubscribers.Set(float64(b.SubscriberCount()))
	return id, ch
}

func (b *Broadcaster) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()

	metrics.FeedSubscribers.Set(float64(b.SubscriberCount()))
}

// ServeHTTP upgrades to WebSocket and streams feed messages until the
// client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("feed websocket accept failed")
		return
	}

	id, ch := b.subscribe()
	defer b.unsubscribe(id)
	defer conn.Close(websocket.StatusNormalClosure, "")

	b.logger.Info().Str("subscriber", id.String()).Msg("feed subscriber connected")

	// Drain incoming frames so pings and close frames are processed.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Str("subscriber", id.String()).Msg("feed subscriber disconnected")
			return
		case data := <-ch:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				b.logger.Info().Str("subscriber", id.String()).Err(err).Msg("feed write failed")
				return
			}
		}
	}
}
