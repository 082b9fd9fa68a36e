// Package registry holds the live telemetry state for every connected node.
// It owns the record values, applies fleet events to them, and encodes wire
// tuples under its lock so records are never read mid-update.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/CYBAI/substrate-telemetry/internal/sampler"
	"github.com/CYBAI/substrate-telemetry/internal/telemetry"
)

// NodeID identifies a node for the lifetime of its connection.
type NodeID = uint64

var (
	// ErrUnknownNode is returned for events referencing a node that was
	// never added or has been removed.
	ErrUnknownNode = errors.New("unknown node")
	// ErrChainDenied is returned when a node announces a denied chain.
	ErrChainDenied = errors.New("chain is denied")
)

// Node is the complete telemetry state of one connected node.
type Node struct {
	Details  telemetry.NodeDetails
	Stats    telemetry.NodeStats
	IO       telemetry.NodeIO
	Hardware telemetry.NodeHardware
	Location *telemetry.NodeLocation
	Best     telemetry.BlockDetails
}

// Registry tracks connected nodes. All methods are safe for concurrent use.
type Registry struct {
	logger zerolog.Logger
	clock  telemetry.Clock
	denied map[string]struct{}

	mu     sync.Mutex
	nextID NodeID
	nodes  map[NodeID]*Node
}

// New creates an empty registry. Chains named in deniedChains reject node
// registration. A nil clock uses the system wall clock.
func New(logger zerolog.Logger, clock telemetry.Clock, deniedChains []string) *Registry {
	if clock == nil {
		clock = telemetry.SystemClock
	}
	denied := make(map[string]struct{}, len(deniedChains))
	for _, c := range deniedChains {
		denied[c] = struct{}{}
	}
	return &Registry{
		logger: logger.With().Str("component", "registry").Logger(),
		clock:  clock,
		denied: denied,
		nodes:  make(map[NodeID]*Node),
	}
}

// AddNode registers a newly connected node and returns its ID.
func (r *Registry) AddNode(details telemetry.NodeDetails) (NodeID, error) {
	if _, ok := r.denied[details.Chain]; ok {
		return 0, fmt.Errorf("%w: %s", ErrChainDenied, details.Chain)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.nodes[id] = &Node{
		Details: details,
		IO: telemetry.NodeIO{
			UsedStateCacheSize: sampler.NewMeanList[float32](),
		},
		Hardware: telemetry.NodeHardware{
			Upload:      sampler.NewMeanList[float64](),
			Download:    sampler.NewMeanList[float64](),
			ChartStamps: sampler.NewMeanList[float64](),
		},
		Best: telemetry.NewBlockDetails(r.clock),
	}

	r.logger.Info().
		Uint64("node_id", id).
		Str("chain", details.Chain).
		Str("name", details.Name).
		Msg("node added")
	return id, nil
}

// RemoveNode drops a node's state after its connection closes.
func (r *Registry) RemoveNode(id NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[id]; !ok {
		return
	}
	delete(r.nodes, id)
	r.logger.Info().Uint64("node_id", id).Msg("node removed")
}

// Node returns a copy of a node's state. The digest samplers inside the
// copy are still owned by the registry; callers must not push to them.
func (r *Registry) Node(id NodeID) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Snapshot is one node's state with every record already encoded to its
// wire tuple. Encoding happens under the registry lock so read-only callers
// never observe a record mid-update.
type Snapshot struct {
	ID       NodeID
	Details  telemetry.NodeDetails
	Stats    telemetry.Tuple
	IO       telemetry.Tuple
	Hardware telemetry.Tuple
	Location telemetry.Tuple
	Block    telemetry.Tuple
}

// Encoded returns wire-encoded snapshots of all registered nodes, ordered
// by ID.
func (r *Registry) Encoded() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(r.nodes))
	for id, n := range r.nodes {
		s := Snapshot{
			ID:       id,
			Details:  n.Details,
			Stats:    n.Stats.EncodeTuple(),
			IO:       n.IO.EncodeTuple(),
			Hardware: n.Hardware.EncodeTuple(),
			Block:    n.Best.EncodeTuple(),
		}
		if n.Location != nil {
			s.Location = n.Location.EncodeTuple()
		}
		snaps = append(snaps, s)
	}
	slices.SortFunc(snaps, func(a, b Snapshot) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return snaps
}

// Count reports how many nodes are currently registered.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// UpdateStats applies a counter update. The returned tuple is the node's
// encoded stats; changed is false when the counters are identical to the
// previous report, letting callers skip redundant feed traffic.
func (r *Registry) UpdateStats(id NodeID, stats telemetry.NodeStats) (telemetry.Tuple, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, false, ErrUnknownNode
	}
	changed := n.Stats != stats
	n.Stats = stats
	return n.Stats.EncodeTuple(), changed, nil
}

// PushIO records a state cache usage sample and returns the encoded digest.
func (r *Registry) PushIO(id NodeID, usedStateCacheSize float32) (telemetry.Tuple, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, ErrUnknownNode
	}
	n.IO.UsedStateCacheSize.Push(usedStateCacheSize)
	return n.IO.EncodeTuple(), nil
}

// PushHardware records bandwidth samples, stamps them with the current
// time, and returns the encoded hardware digests.
func (r *Registry) PushHardware(id NodeID, upload, download float64) (telemetry.Tuple, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, ErrUnknownNode
	}
	n.Hardware.Upload.Push(upload)
	n.Hardware.Download.Push(download)
	n.Hardware.ChartStamps.Push(float64(r.clock()))
	return n.Hardware.EncodeTuple(), nil
}

// UpdateLocation applies a geolocation result. changed is false when the
// location is structurally equal to the previous one.
func (r *Registry) UpdateLocation(id NodeID, loc telemetry.NodeLocation) (telemetry.Tuple, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, false, ErrUnknownNode
	}
	if n.Location != nil && *n.Location == loc {
		return n.Location.EncodeTuple(), false, nil
	}
	n.Location = &loc
	return loc.EncodeTuple(), true, nil
}

// ImportBlock applies an observed block. The node's chain position only
// advances; blocks at or below the current best height are ignored.
func (r *Registry) ImportBlock(id NodeID, details telemetry.BlockDetails) (telemetry.Tuple, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, false, ErrUnknownNode
	}
	if details.Block.Height <= n.Best.Block.Height && n.Best.Block != telemetry.ZeroBlock() {
		return n.Best.EncodeTuple(), false, nil
	}
	n.Best = details
	return n.Best.EncodeTuple(), true, nil
}
