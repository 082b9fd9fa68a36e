package registry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CYBAI/substrate-telemetry/internal/telemetry"
)

func testDetails(chain string) telemetry.NodeDetails {
	return telemetry.NodeDetails{
		Chain:          chain,
		Name:           "node-under-test",
		Implementation: "test-impl",
		Version:        "1.0.0",
	}
}

func newTestRegistry(t *testing.T, denied ...string) *Registry {
	t.Helper()
	return New(zerolog.Nop(), telemetry.FixedClock(1000), denied)
}

func TestAddAndRemoveNode(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.AddNode(testDetails("Polkadot"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count())

	n, ok := r.Node(id)
	require.True(t, ok)
	assert.Equal(t, "Polkadot", n.Details.Chain)
	assert.Equal(t, telemetry.ZeroBlock(), n.Best.Block)
	assert.Equal(t, telemetry.Timestamp(1000), n.Best.BlockTimestamp)

	r.RemoveNode(id)
	assert.Equal(t, 0, r.Count())
	_, ok = r.Node(id)
	assert.False(t, ok)
}

func TestAddNodeDeniedChain(t *testing.T) {
	r := newTestRegistry(t, "Spammy")

	_, err := r.AddNode(testDetails("Spammy"))
	require.ErrorIs(t, err, ErrChainDenied)
	assert.Equal(t, 0, r.Count())
}

func TestUpdateStats(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.AddNode(testDetails("Polkadot"))
	require.NoError(t, err)

	tup, changed, err := r.UpdateStats(id, telemetry.NodeStats{Peers: 3, TxCount: 7})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, telemetry.Tuple{uint64(3), uint64(7)}, tup)

	// Identical counters are not a change.
	_, changed, err = r.UpdateStats(id, telemetry.NodeStats{Peers: 3, TxCount: 7})
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = r.UpdateStats(99, telemetry.NodeStats{})
	require.ErrorIs(t, err, ErrUnknownNode)
}

func TestPushIOAndHardware(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.AddNode(testDetails("Polkadot"))
	require.NoError(t, err)

	tup, err := r.PushIO(id, 1.5)
	require.NoError(t, err)
	require.Len(t, tup, 1)
	assert.Equal(t, []float32{1.5}, tup[0])

	tup, err = r.PushHardware(id, 10, 20)
	require.NoError(t, err)
	require.Len(t, tup, 3)
	assert.Equal(t, []float64{10}, tup[0])
	assert.Equal(t, []float64{20}, tup[1])
	// Chart stamps carry the clock reading.
	assert.Equal(t, []float64{1000}, tup[2])
}

func TestUpdateLocationDeduplicates(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.AddNode(testDetails("Polkadot"))
	require.NoError(t, err)

	loc := telemetry.NodeLocation{Latitude: 1, Longitude: 2, City: "Lisbon"}

	tup, changed, err := r.UpdateLocation(id, loc)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, telemetry.Tuple{float32(1), float32(2), "Lisbon"}, tup)

	_, changed, err = r.UpdateLocation(id, loc)
	require.NoError(t, err)
	assert.False(t, changed)

	_, changed, err = r.UpdateLocation(id, telemetry.NodeLocation{Latitude: 1, Longitude: 2, City: "Porto"})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestImportBlockOnlyAdvances(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.AddNode(testDetails("Polkadot"))
	require.NoError(t, err)

	five := telemetry.BlockDetails{
		Block:          telemetry.Block{Hash: telemetry.BlockHash{5}, Height: 5},
		BlockTime:      2,
		BlockTimestamp: 1000,
	}
	tup, updated, err := r.ImportBlock(id, five)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, telemetry.Tuple{uint64(5), telemetry.BlockHash{5}, uint64(2), uint64(1000), nil}, tup)

	// An older block does not move the position back.
	three := telemetry.BlockDetails{
		Block:          telemetry.Block{Hash: telemetry.BlockHash{3}, Height: 3},
		BlockTimestamp: 1001,
	}
	tup, updated, err = r.ImportBlock(id, three)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, uint64(5), tup[0])

	n, _ := r.Node(id)
	assert.Equal(t, uint64(5), n.Best.Block.Height)
}
