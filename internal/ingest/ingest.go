// Package ingest accepts telemetry submissions from nodes over WebSocket,
// validates them, and applies them to the registry, publishing the
// resulting encoded updates to the dashboard feed.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/CYBAI/substrate-telemetry/internal/feed"
	"github.com/CYBAI/substrate-telemetry/internal/metrics"
	"github.com/CYBAI/substrate-telemetry/internal/registry"
	"github.com/CYBAI/substrate-telemetry/internal/telemetry"
)

// Node message kinds.
const (
	MsgConnected = "system.connected"
	MsgInterval  = "system.interval"
	MsgBlock     = "block.import"
	MsgLocation  = "system.location"
)

var validate = validator.New()

type connectedMsg struct {
	Node telemetry.NodeDetails `json:"node" validate:"required"`
}

type intervalMsg struct {
	Peers              uint64   `json:"peers"`
	TxCount            uint64   `json:"txcount"`
	BandwidthUpload    *float64 `json:"bandwidth_upload,omitempty"`
	BandwidthDownload  *float64 `json:"bandwidth_download,omitempty"`
	UsedStateCacheSize *float32 `json:"used_state_cache_size,omitempty"`
}

type blockImportMsg struct {
	Height          uint64              `json:"height"`
	Hash            telemetry.BlockHash `json:"hash"`
	BlockTime       uint64              `json:"block_time"`
	PropagationTime *uint64             `json:"propagation_time,omitempty"`
}

type locationMsg struct {
	Latitude  float32 `json:"latitude"`
	Longitude float32 `json:"longitude"`
	City      string  `json:"city"`
}

// Publisher receives the encoded updates produced by handled messages.
// *feed.Broadcaster is the production implementation.
type Publisher interface {
	Broadcast(feed.Message)
}

// Handler terminates node submit connections.
type Handler struct {
	logger   zerolog.Logger
	registry *registry.Registry
	feed     Publisher
	clock    telemetry.Clock
}

// NewHandler creates an ingest handler. A nil clock uses the system wall
// clock for block observation timestamps.
func NewHandler(logger zerolog.Logger, reg *registry.Registry, bc Publisher, clock telemetry.Clock) *Handler {
	if clock == nil {
		clock = telemetry.SystemClock
	}
	return &Handler{
		logger:   logger.With().Str("component", "ingest").Logger(),
		registry: reg,
		feed:     bc,
		clock:    clock,
	}
}

// ServeHTTP upgrades to WebSocket and consumes node messages until the
// connection closes. The first message must be a connected announcement.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("submit websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()

	_, first, err := conn.Read(ctx)
	if err != nil {
		return
	}
	id, err := h.Connect(first)
	if err != nil {
		h.logger.Warn().Err(err).Msg("rejecting node connection")
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	defer h.Disconnect(id)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := h.Handle(id, raw); err != nil {
			h.logger.Warn().Err(err).Uint64("node_id", id).Msg("dropping bad node message")
		}
	}
}

// Connect registers the node announced by a connected message and
// publishes its details to the feed.
func (h *Handler) Connect(raw []byte) (registry.NodeID, error) {
	kind, err := messageKind(raw)
	if err != nil {
		return 0, err
	}
	if kind != MsgConnected {
		metrics.IngestRejected.WithLabelValues("not_connected").Inc()
		return 0, fmt.Errorf("expected %s as first message, got %s", MsgConnected, kind)
	}

	var msg connectedMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IngestRejected.WithLabelValues("malformed").Inc()
		return 0, fmt.Errorf("malformed connected message: %w", err)
	}
	if err := validate.Struct(msg); err != nil {
		metrics.IngestRejected.WithLabelValues("invalid_details").Inc()
		return 0, fmt.Errorf("invalid node details: %w", err)
	}

	id, err := h.registry.AddNode(msg.Node)
	if err != nil {
		metrics.IngestRejected.WithLabelValues("denied_chain").Inc()
		return 0, err
	}

	metrics.IngestMessages.WithLabelValues(MsgConnected).Inc()
	metrics.ConnectedNodes.Set(float64(h.registry.Count()))
	h.feed.Broadcast(feed.Message{Action: feed.ActionAdded, NodeID: id, Payload: msg.Node})
	return id, nil
}

// Disconnect removes the node and announces its departure on the feed.
func (h *Handler) Disconnect(id registry.NodeID) {
	h.registry.RemoveNode(id)
	metrics.ConnectedNodes.Set(float64(h.registry.Count()))
	h.feed.Broadcast(feed.Message{Action: feed.ActionRemoved, NodeID: id})
}

// Handle applies one telemetry message from an already connected node.
func (h *Handler) Handle(id registry.NodeID, raw []byte) error {
	kind, err := messageKind(raw)
	if err != nil {
		return err
	}

	switch kind {
	case MsgInterval:
		return h.handleInterval(id, raw)
	case MsgBlock:
		return h.handleBlock(id, raw)
	case MsgLocation:
		return h.handleLocation(id, raw)
	case MsgConnected:
		return fmt.Errorf("duplicate %s message", MsgConnected)
	default:
		metrics.IngestRejected.WithLabelValues("unknown_kind").Inc()
		return fmt.Errorf("unknown message kind %q", kind)
	}
}

func (h *Handler) handleInterval(id registry.NodeID, raw []byte) error {
	var msg intervalMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed interval message: %w", err)
	}
	metrics.IngestMessages.WithLabelValues(MsgInterval).Inc()

	tup, changed, err := h.registry.UpdateStats(id, telemetry.NodeStats{Peers: msg.Peers, TxCount: msg.TxCount})
	if err != nil {
		return err
	}
	if changed {
		h.feed.Broadcast(feed.Message{Action: feed.ActionStats, NodeID: id, Payload: tup})
	}

	switch {
	case msg.BandwidthUpload != nil && msg.BandwidthDownload != nil:
		tup, err := h.registry.PushHardware(id, *msg.BandwidthUpload, *msg.BandwidthDownload)
		if err != nil {
			return err
		}
		h.feed.Broadcast(feed.Message{Action: feed.ActionHardware, NodeID: id, Payload: tup})
	case msg.BandwidthUpload != nil || msg.BandwidthDownload != nil:
		// The upload and download digests advance in lockstep; a report
		// carrying only one side cannot be applied.
		metrics.IngestRejected.WithLabelValues("partial_bandwidth").Inc()
		h.logger.Warn().Uint64("node_id", id).Msg("interval message carried only one bandwidth side, ignoring both")
	}

	if msg.UsedStateCacheSize != nil {
		tup, err := h.registry.PushIO(id, *msg.UsedStateCacheSize)
		if err != nil {
			return err
		}
		h.feed.Broadcast(feed.Message{Action: feed.ActionIO, NodeID: id, Payload: tup})
	}
	return nil
}

func (h *Handler) handleBlock(id registry.NodeID, raw []byte) error {
	var msg blockImportMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed block message: %w", err)
	}
	metrics.IngestMessages.WithLabelValues(MsgBlock).Inc()

	details := telemetry.BlockDetails{
		Block:           telemetry.Block{Hash: msg.Hash, Height: msg.Height},
		BlockTime:       msg.BlockTime,
		BlockTimestamp:  h.clock(),
		PropagationTime: msg.PropagationTime,
	}
	tup, updated, err := h.registry.ImportBlock(id, details)
	if err != nil {
		return err
	}
	if updated {
		h.feed.Broadcast(feed.Message{Action: feed.ActionBlock, NodeID: id, Payload: tup})
	}
	return nil
}

func (h *Handler) handleLocation(id registry.NodeID, raw []byte) error {
	var msg locationMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed location message: %w", err)
	}
	metrics.IngestMessages.WithLabelValues(MsgLocation).Inc()

	loc := telemetry.NodeLocation{Latitude: msg.Latitude, Longitude: msg.Longitude, City: msg.City}
	tup, changed, err := h.registry.UpdateLocation(id, loc)
	if err != nil {
		return err
	}
	if changed {
		h.feed.Broadcast(feed.Message{Action: feed.ActionLocation, NodeID: id, Payload: tup})
	}
	return nil
}

func messageKind(raw []byte) (string, error) {
	var env struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("malformed message envelope: %w", err)
	}
	if env.Msg == "" {
		return "", errors.New("message envelope missing msg field")
	}
	return env.Msg, nil
}
