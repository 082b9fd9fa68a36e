package telemetry

import (
	"errors"
	"fmt"
)

// Tuple is the ordered slot sequence a record encodes to. The concrete byte
// format is chosen by the transport; this layer only fixes slot order and
// arity. A Tuple marshals naturally as a JSON array.
type Tuple []any

// Encodable is the capability every record type has: flattening itself into
// its fixed-order wire tuple. Encoding a well-formed record always succeeds.
type Encodable interface {
	EncodeTuple() Tuple
}

// Decodable is the capability only reversible record types have. One-way
// digest records (NodeIO, NodeHardware) deliberately do not implement it, so
// attempting to reconstruct them does not type-check.
type Decodable interface {
	DecodeTuple(Tuple) error
}

// ErrShapeMismatch is returned when a tuple's arity or a slot's type does
// not match the record being decoded. Values are never coerced or truncated
// to fit.
var ErrShapeMismatch = errors.New("tuple shape mismatch")

func arityErr(record string, want, got int) error {
	return fmt.Errorf("%w: %s expects %d slots, got %d", ErrShapeMismatch, record, want, got)
}

func slotErr(record string, slot int, want string, got any) error {
	return fmt.Errorf("%w: %s slot %d expects %s, got %T", ErrShapeMismatch, record, slot, want, got)
}

func slotU64(record string, t Tuple, slot int) (uint64, error) {
	v, ok := t[slot].(uint64)
	if !ok {
		return 0, slotErr(record, slot, "uint64", t[slot])
	}
	return v, nil
}

func slotF32(record string, t Tuple, slot int) (float32, error) {
	v, ok := t[slot].(float32)
	if !ok {
		return 0, slotErr(record, slot, "float32", t[slot])
	}
	return v, nil
}

func slotString(record string, t Tuple, slot int) (string, error) {
	v, ok := t[slot].(string)
	if !ok {
		return "", slotErr(record, slot, "string", t[slot])
	}
	return v, nil
}

func slotHash(record string, t Tuple, slot int) (BlockHash, error) {
	v, ok := t[slot].(BlockHash)
	if !ok {
		return BlockHash{}, slotErr(record, slot, "BlockHash", t[slot])
	}
	return v, nil
}

// Optional slots carry either nil or a bare value, never a pointer.
func slotOptU64(record string, t Tuple, slot int) (*uint64, error) {
	if t[slot] == nil {
		return nil, nil
	}
	v, ok := t[slot].(uint64)
	if !ok {
		return nil, slotErr(record, slot, "uint64 or nil", t[slot])
	}
	return &v, nil
}

// snapshot reads a digest, treating an unset sampler as empty.
func snapshot[T Float](s Sampler[T]) []T {
	if s == nil {
		return []T{}
	}
	return s.Snapshot()
}

// EncodeTuple emits (peers, txcount).
func (s NodeStats) EncodeTuple() Tuple {
	return Tuple{s.Peers, s.TxCount}
}

// DecodeTuple parses (peers, txcount).
func (s *NodeStats) DecodeTuple(t Tuple) error {
	if len(t) != 2 {
		return arityErr("NodeStats", 2, len(t))
	}
	peers, err := slotU64("NodeStats", t, 0)
	if err != nil {
		return err
	}
	txcount, err := slotU64("NodeStats", t, 1)
	if err != nil {
		return err
	}
	s.Peers = peers
	s.TxCount = txcount
	return nil
}

// EncodeTuple emits the single state cache digest. The digest is a lossy
// compaction; there is no way back from it to the sampler, so NodeIO has no
// decode path.
func (io NodeIO) EncodeTuple() Tuple {
	return Tuple{snapshot(io.UsedStateCacheSize)}
}

// EncodeTuple emits the three digests in upload, download, chart_stamps
// order. Like NodeIO this is one-way.
func (h NodeHardware) EncodeTuple() Tuple {
	return Tuple{snapshot(h.Upload), snapshot(h.Download), snapshot(h.ChartStamps)}
}

// EncodeTuple emits (latitude, longitude, city).
func (l NodeLocation) EncodeTuple() Tuple {
	return Tuple{l.Latitude, l.Longitude, l.City}
}

// DecodeTuple parses (latitude, longitude, city).
func (l *NodeLocation) DecodeTuple(t Tuple) error {
	if len(t) != 3 {
		return arityErr("NodeLocation", 3, len(t))
	}
	lat, err := slotF32("NodeLocation", t, 0)
	if err != nil {
		return err
	}
	lon, err := slotF32("NodeLocation", t, 1)
	if err != nil {
		return err
	}
	city, err := slotString("NodeLocation", t, 2)
	if err != nil {
		return err
	}
	l.Latitude = lat
	l.Longitude = lon
	l.City = city
	return nil
}

// EncodeTuple emits (height, hash, block_time, block_timestamp,
// propagation_time). Height and hash are promoted out of the nested Block
// and placed first; this reordering is a wire-compatibility contract and
// must never change.
func (d BlockDetails) EncodeTuple() Tuple {
	var propagation any
	if d.PropagationTime != nil {
		propagation = *d.PropagationTime
	}
	return Tuple{d.Block.Height, d.Block.Hash, d.BlockTime, d.BlockTimestamp, propagation}
}

// DecodeTuple parses the 5-slot tuple back into a BlockDetails,
// reassembling the nested Block from the two promoted slots.
func (d *BlockDetails) DecodeTuple(t Tuple) error {
	if len(t) != 5 {
		return arityErr("BlockDetails", 5, len(t))
	}
	height, err := slotU64("BlockDetails", t, 0)
	if err != nil {
		return err
	}
	hash, err := slotHash("BlockDetails", t, 1)
	if err != nil {
		return err
	}
	blockTime, err := slotU64("BlockDetails", t, 2)
	if err != nil {
		return err
	}
	blockTimestamp, err := slotU64("BlockDetails", t, 3)
	if err != nil {
		return err
	}
	propagation, err := slotOptU64("BlockDetails", t, 4)
	if err != nil {
		return err
	}
	d.Block = Block{Hash: hash, Height: height}
	d.BlockTime = blockTime
	d.BlockTimestamp = blockTimestamp
	d.PropagationTime = propagation
	return nil
}

var (
	_ Encodable = NodeStats{}
	_ Encodable = NodeIO{}
	_ Encodable = NodeHardware{}
	_ Encodable = NodeLocation{}
	_ Encodable = BlockDetails{}

	_ Decodable = (*NodeStats)(nil)
	_ Decodable = (*NodeLocation)(nil)
	_ Decodable = (*BlockDetails)(nil)
)
