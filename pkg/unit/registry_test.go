package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topeysoft/ace-go/internal/acetest"
	"github.com/topeysoft/ace-go/pkg/discovery"
	"github.com/topeysoft/ace-go/pkg/wire"
)

func registryUnit(t *testing.T, topologyKey string, ordinal int) *Unit {
	t.Helper()
	device := acetest.NewDevice(wire.Info{Model: "Anycubic ACE Pro", Firmware: "v1.2.3"})
	link, _, err := acetest.OpenLink(device)
	require.NoError(t, err)
	u := New(discovery.Identity{TopologyKey: topologyKey, Ordinal: ordinal}, device.Info(), link, Config{})
	t.Cleanup(func() { u.Close() })
	return u
}

func TestRegistry_AddAndGet(t *testing.T) {
	reg := NewRegistry()
	u := registryUnit(t, "1-1", 0)

	require.NoError(t, reg.Add(u))

	got, err := reg.Get("1-1")
	require.NoError(t, err)
	assert.Same(t, u, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_AddDuplicateKey(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(registryUnit(t, "1-1", 0)))

	err := reg.Add(registryUnit(t, "1-1", 1))
	assert.ErrorIs(t, err, ErrUnitExists)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_GetUnknownKey(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("9-9")
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestRegistry_ReplaceReturnsPrevious(t *testing.T) {
	reg := NewRegistry()
	old := registryUnit(t, "1-1", 0)
	require.NoError(t, reg.Add(old))

	fresh := registryUnit(t, "1-1", 0)
	prev := reg.Replace(fresh)

	assert.Same(t, old, prev)
	got, err := reg.Get("1-1")
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestRegistry_ReplaceIntoEmptySlot(t *testing.T) {
	reg := NewRegistry()
	u := registryUnit(t, "1-1", 0)

	assert.Nil(t, reg.Replace(u))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry()
	u := registryUnit(t, "1-1", 0)
	require.NoError(t, reg.Add(u))

	assert.Same(t, u, reg.Remove("1-1"))
	assert.Nil(t, reg.Remove("1-1"))
	assert.Zero(t, reg.Len())
}

func TestRegistry_ByOrdinal(t *testing.T) {
	reg := NewRegistry()
	first := registryUnit(t, "1-1", 0)
	second := registryUnit(t, "1-2", 1)
	require.NoError(t, reg.Add(first))
	require.NoError(t, reg.Add(second))

	got, err := reg.ByOrdinal(1)
	require.NoError(t, err)
	assert.Same(t, second, got)

	_, err = reg.ByOrdinal(7)
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestRegistry_UnitsSortedByOrdinal(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(registryUnit(t, "1-3", 2)))
	require.NoError(t, reg.Add(registryUnit(t, "1-1", 0)))
	require.NoError(t, reg.Add(registryUnit(t, "1-2", 1)))

	units := reg.Units()
	require.Len(t, units, 3)
	for i, u := range units {
		assert.Equal(t, i, u.Identity().Ordinal)
	}
}

func TestRegistry_CloseClosesAllUnits(t *testing.T) {
	reg := NewRegistry()
	first := registryUnit(t, "1-1", 0)
	second := registryUnit(t, "1-2", 1)
	require.NoError(t, reg.Add(first))
	require.NoError(t, reg.Add(second))

	require.NoError(t, reg.Close())

	assert.Zero(t, reg.Len())
	assert.False(t, first.Connected())
	assert.False(t, second.Connected())
}
