package unit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topeysoft/ace-go/internal/acetest"
	"github.com/topeysoft/ace-go/pkg/discovery"
	"github.com/topeysoft/ace-go/pkg/wire"
)

const (
	pathA = "pci-0000:00:14.0-usb-0:1:1.0-port0"
	pathB = "pci-0000:00:14.0-usb-0:2:1.0-port0"
)

type staticLister struct {
	mu    sync.Mutex
	ports []discovery.PortInfo
}

func (l *staticLister) List() ([]discovery.PortInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]discovery.PortInfo(nil), l.ports...), nil
}

func (l *staticLister) set(ports ...discovery.PortInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ports = ports
}

func acePort(device, byPath string) discovery.PortInfo {
	return discovery.PortInfo{
		Device:    device,
		ByPath:    byPath,
		IsUSB:     true,
		VendorID:  discovery.VendorID,
		ProductID: discovery.ProductID,
		Product:   "ACE 1",
	}
}

// connectFixture wires two simulated units behind a discovery service.
func connectFixture(t *testing.T) (*discovery.Service, *acetest.Factory, *staticLister, map[string]*acetest.Device) {
	t.Helper()
	factory := acetest.NewFactory()
	devices := map[string]*acetest.Device{
		pathA: acetest.NewDevice(wire.Info{Model: "Anycubic ACE Pro", Firmware: "v1.2.3", SerialNumber: "ACE001"}),
		pathB: acetest.NewDevice(wire.Info{Model: "Anycubic ACE Pro", Firmware: "v1.2.3", SerialNumber: "ACE002"}),
	}
	factory.Add(pathA, devices[pathA])
	factory.Add(pathB, devices[pathB])

	lister := &staticLister{}
	lister.set(acePort("/dev/ttyACM0", pathA), acePort("/dev/ttyACM1", pathB))

	svc := discovery.NewService(discovery.Config{
		Lister:       lister,
		PortFactory:  factory.Open,
		ProbeTimeout: 250 * time.Millisecond,
	})
	return svc, factory, lister, devices
}

// --- Connect tests ---

func TestConnect_VerifiesIdentityAndPollsStatus(t *testing.T) {
	svc, _, _, devices := connectFixture(t)
	found, err := svc.DiscoverAll()
	require.NoError(t, err)
	require.Len(t, found, 2)

	u, err := Connect(found[0], svc.LinkConfig(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })

	assert.True(t, u.Connected())
	assert.Equal(t, "ACE001", u.Info().SerialNumber)
	assert.Equal(t, 0, u.Identity().Ordinal)

	requests := devices[pathA].Requests()
	require.Len(t, requests, 3, "probe get_info, connect get_info, initial get_status")
	assert.Equal(t, wire.MethodGetInfo, requests[1])
	assert.Equal(t, wire.MethodGetStatus, requests[2])
}

func TestConnect_UnopenablePort(t *testing.T) {
	svc, _, _, _ := connectFixture(t)

	gone := &discovery.Discovered{
		Identity:  discovery.Identity{TopologyKey: "9-9", Ordinal: 3},
		Candidate: discovery.Candidate{Path: "no-such-port"},
	}
	_, err := Connect(gone, svc.LinkConfig(), Config{})
	assert.ErrorContains(t, err, "no-such-port")
}

func TestConnect_RequiresInfoExchange(t *testing.T) {
	svc, factory, _, devices := connectFixture(t)
	found, err := svc.DiscoverAll()
	require.NoError(t, err)

	devices[pathA].DropNext(wire.MethodGetInfo, 1)
	_, err = Connect(found[0], svc.LinkConfig(), Config{})
	require.Error(t, err)
	assert.True(t, factory.LastPort(pathA).Closed(), "failed connect must not leak its link")
}

func TestConnect_ToleratesInitialStatusFailure(t *testing.T) {
	svc, _, _, devices := connectFixture(t)
	found, err := svc.DiscoverAll()
	require.NoError(t, err)

	devices[pathA].DropNext(wire.MethodGetStatus, 1)
	u, err := Connect(found[0], svc.LinkConfig(), Config{})
	require.NoError(t, err, "a unit that identifies but misses one poll is still usable")
	t.Cleanup(func() { u.Close() })

	assert.True(t, u.Connected())
	ch, err := u.Channel(0)
	require.NoError(t, err)
	assert.Equal(t, ChannelEmpty, ch.State)
}

// --- ConnectAll tests ---

func TestConnectAll_RegistersEveryUnit(t *testing.T) {
	svc, _, _, _ := connectFixture(t)
	reg := NewRegistry()
	t.Cleanup(func() { reg.Close() })

	units, err := ConnectAll(svc, reg, Config{})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, 2, reg.Len())

	for i, u := range units {
		assert.Equal(t, i, u.Identity().Ordinal)
		assert.True(t, u.Connected())
	}
	first, err := reg.ByOrdinal(0)
	require.NoError(t, err)
	assert.Equal(t, "ACE001", first.Info().SerialNumber)
}

func TestConnectAll_SkipsKeyAlreadyRegistered(t *testing.T) {
	svc, factory, _, _ := connectFixture(t)
	reg := NewRegistry()
	t.Cleanup(func() { reg.Close() })

	squatter := registryUnit(t, "0-1", 0)
	require.NoError(t, reg.Add(squatter))

	units, err := ConnectAll(svc, reg, Config{})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "ACE002", units[0].Info().SerialNumber)

	kept, err := reg.Get("0-1")
	require.NoError(t, err)
	assert.Same(t, squatter, kept)
	assert.True(t, factory.LastPort(pathA).Closed(), "rejected duplicate must close its link")
}

// --- Reconnect tests ---

func TestReconnect_SwapsInAFreshUnit(t *testing.T) {
	svc, _, _, _ := connectFixture(t)
	reg := NewRegistry()
	t.Cleanup(func() { reg.Close() })

	units, err := ConnectAll(svc, reg, Config{})
	require.NoError(t, err)
	old := units[0]

	fresh, err := Reconnect(svc, reg, old)
	require.NoError(t, err)

	assert.NotSame(t, old, fresh)
	assert.False(t, old.Connected())
	assert.True(t, fresh.Connected())
	assert.Equal(t, old.Identity(), fresh.Identity(), "reconnect keeps key and ordinal")

	got, err := reg.Get("0-1")
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestReconnect_VanishedUnit(t *testing.T) {
	svc, _, lister, _ := connectFixture(t)
	reg := NewRegistry()
	t.Cleanup(func() { reg.Close() })

	units, err := ConnectAll(svc, reg, Config{})
	require.NoError(t, err)
	old := units[0]

	lister.set(acePort("/dev/ttyACM1", pathB))

	_, err = Reconnect(svc, reg, old)
	assert.ErrorIs(t, err, discovery.ErrNotFound)
	assert.False(t, old.Connected())

	_, err = reg.Get("0-1")
	assert.ErrorIs(t, err, ErrUnitNotFound, "unreachable unit must leave the registry")

	second, err := reg.Get("0-2")
	require.NoError(t, err)
	assert.True(t, second.Connected(), "other units stay registered")
}
