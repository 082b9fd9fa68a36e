// Package telemetry defines the record types a monitored node reports and
// the positional wire encoding used to ship them to the aggregator and the
// live dashboard feed. Field identity on the wire is conveyed purely by slot
// order, never by name, so the slot order of every record is a permanent
// contract.
package telemetry

import (
	"encoding/hex"
	"fmt"
)

// BlockNumber is a chain height.
type BlockNumber = uint64

// Timestamp is a wall-clock time in milliseconds since the Unix epoch.
type Timestamp = uint64

// BlockHash is a 256-bit block hash.
type BlockHash [32]byte

// String returns the hash as a 0x-prefixed hex string.
func (h BlockHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h BlockHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts 64 hex
// characters with an optional 0x prefix.
func (h *BlockHash) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != 2*len(h) {
		return fmt.Errorf("block hash must be %d hex characters, got %d", 2*len(h), len(s))
	}
	_, err := hex.Decode(h[:], []byte(s))
	return err
}

// Float constrains sample values to the two digest widths that appear on
// the wire.
type Float interface {
	~float32 | ~float64
}

// Sampler accumulates a stream of numeric observations over time and
// exposes a compacted, ordered digest of them. The digest is one-way: the
// original observations cannot be reconstructed from it.
//
// Snapshot must be safe to call at any point between pushes; the codec
// treats it as an opaque, side-effect-free read.
type Sampler[T Float] interface {
	Push(sample T)
	Snapshot() []T
}

// NodeDetails describes a node's static identity. Unlike the other records
// it is carried with named fields rather than a positional tuple, and it is
// immutable for the lifetime of a node's connection.
type NodeDetails struct {
	Chain          string  `json:"chain" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	Implementation string  `json:"implementation" validate:"required"`
	Version        string  `json:"version" validate:"required"`
	Validator      *string `json:"validator,omitempty"`
	NetworkID      *string `json:"network_id,omitempty"`
	StartupTime    *string `json:"startup_time,omitempty"`
}

// NodeStats holds a node's live counters. Updated in place as interval
// reports arrive.
type NodeStats struct {
	Peers   uint64
	TxCount uint64
}

// NodeIO tracks the node's state cache usage as a rolling digest.
type NodeIO struct {
	UsedStateCacheSize Sampler[float32]
}

// NodeHardware tracks bandwidth and chart timestamps as rolling digests.
type NodeHardware struct {
	Upload      Sampler[float64]
	Download    Sampler[float64]
	ChartStamps Sampler[float64]
}

// NodeLocation is a node's resolved geolocation. Equality is structural;
// the registry compares locations with == to detect changes.
type NodeLocation struct {
	Latitude  float32
	Longitude float32
	City      string
}

// Block is a concise chain position. It never travels as a named-field
// object; on the wire its fields appear only as promoted BlockDetails
// slots.
type Block struct {
	Hash   BlockHash
	Height BlockNumber
}

// ZeroBlock returns the well-known zero chain position: an all-zero hash at
// height 0. It is the default position before any block has been observed.
func ZeroBlock() Block {
	return Block{}
}

// BlockDetails is a verbose chain position: the block itself plus timing
// information about its production and observation.
type BlockDetails struct {
	Block           Block
	BlockTime       uint64
	BlockTimestamp  Timestamp
	PropagationTime *uint64
}

// NewBlockDetails returns a BlockDetails at the zero chain position with
// BlockTimestamp captured from clock at the moment of construction. A nil
// clock uses the system wall clock.
func NewBlockDetails(clock Clock) BlockDetails {
	if clock == nil {
		clock = SystemClock
	}
	return BlockDetails{
		Block:          ZeroBlock(),
		BlockTimestamp: clock(),
	}
}
