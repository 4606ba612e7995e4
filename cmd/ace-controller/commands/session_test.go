package commands

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/topeysoft/ace-go/internal/acetest"
	"github.com/topeysoft/ace-go/pkg/discovery"
	"github.com/topeysoft/ace-go/pkg/unit"
	"github.com/topeysoft/ace-go/pkg/wire"
)

const (
	pathA = "pci-0000:00:14.0-usb-0:1:1.0-port0" // topology key 0-1
	pathB = "pci-0000:00:14.0-usb-0:2:1.0-port0" // topology key 0-2
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

// testSession wires two simulated units behind a fresh Session.
func testSession(t *testing.T) (*Session, map[string]*acetest.Device) {
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

	sess := &Session{
		Service:  svc,
		Registry: unit.NewRegistry(),
	}
	t.Cleanup(func() { sess.Registry.Close() })
	return sess, devices
}

func TestSessionConnectRegistersUnits(t *testing.T) {
	sess, _ := testSession(t)

	n, err := sess.Connect()
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 units connected, got %d", n)
	}
	if sess.Registry.Len() != 2 {
		t.Errorf("expected 2 registered units, got %d", sess.Registry.Len())
	}
}

func TestSessionConnectSkipsRegisteredUnits(t *testing.T) {
	sess, _ := testSession(t)

	if _, err := sess.Connect(); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
	n, err := sess.Connect()
	if err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 new units on second pass, got %d", n)
	}
	if sess.Registry.Len() != 2 {
		t.Errorf("expected registry unchanged, got %d units", sess.Registry.Len())
	}
}

func TestSessionConnectAppliesPerUnitConfig(t *testing.T) {
	sess, devices := testSession(t)
	sess.UnitConfig = func(key string) unit.Config {
		if key == "0-1" {
			return unit.Config{FeedSpeed: 35}
		}
		return unit.Config{}
	}

	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Feed(&buf, "0", "1", "100", ""); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if got := devices[pathA].LastInt(wire.MethodFeed, "speed"); got != 35 {
		t.Errorf("expected configured speed 35 on the wire, got %d", got)
	}
}

func TestSessionResolve(t *testing.T) {
	sess, _ := testSession(t)
	sess.Names = map[string]string{"0-2": "right"}

	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	byOrdinal, err := sess.Resolve("1")
	if err != nil {
		t.Fatalf("Resolve by ordinal failed: %v", err)
	}
	if byOrdinal.Info().SerialNumber != "ACE002" {
		t.Errorf("ordinal 1 resolved to %s", byOrdinal.Info().SerialNumber)
	}

	byKey, err := sess.Resolve("0-1")
	if err != nil {
		t.Fatalf("Resolve by key failed: %v", err)
	}
	if byKey.Info().SerialNumber != "ACE001" {
		t.Errorf("key 0-1 resolved to %s", byKey.Info().SerialNumber)
	}

	byName, err := sess.Resolve("right")
	if err != nil {
		t.Fatalf("Resolve by name failed: %v", err)
	}
	if byName != byOrdinal {
		t.Error("name and ordinal resolved to different units")
	}

	if _, err := sess.Resolve("third"); err == nil {
		t.Error("expected error for unknown unit")
	}
}

func TestSessionDiscoverListsUnits(t *testing.T) {
	sess, _ := testSession(t)

	var buf bytes.Buffer
	if err := sess.Discover(&buf); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "hub_0_port_1") {
		t.Errorf("expected device id in output, got:\n%s", output)
	}
	if !strings.Contains(output, "Anycubic ACE Pro") {
		t.Errorf("expected model in output, got:\n%s", output)
	}
	if !strings.Contains(output, "2 unit(s) found") {
		t.Errorf("expected count line, got:\n%s", output)
	}
	if sess.Registry.Len() != 0 {
		t.Error("Discover must not register units")
	}
}

func TestSessionInfoShowsProfile(t *testing.T) {
	sess, _ := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Info(&buf, "0"); err != nil {
		t.Fatalf("Info failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Model:    Anycubic ACE Pro") {
		t.Errorf("expected model line, got:\n%s", output)
	}
	if !strings.Contains(output, "Firmware: v1.2.3") {
		t.Errorf("expected firmware line, got:\n%s", output)
	}
	if !strings.Contains(output, "Channels: 4") {
		t.Errorf("expected channel count, got:\n%s", output)
	}
	if !strings.Contains(output, "Feed:     10-80 mm/s") {
		t.Errorf("expected feed limits, got:\n%s", output)
	}
}

func TestSessionStatusPrintsChannelsAndDryer(t *testing.T) {
	sess, devices := testSession(t)
	devices[pathA].SetSlot(1, wire.SlotReady)
	devices[pathA].SetRFID(1, "AC-PLA-BK", "PLA", []int{30, 30, 30})

	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Status(&buf, "0"); err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "channel 0: empty") {
		t.Errorf("expected empty channel line, got:\n%s", output)
	}
	if !strings.Contains(output, "channel 1: ready") {
		t.Errorf("expected ready channel line, got:\n%s", output)
	}
	if !strings.Contains(output, "PLA AC-PLA-BK #1E1E1E") {
		t.Errorf("expected material detail, got:\n%s", output)
	}
	if !strings.Contains(output, "dryer: idle") {
		t.Errorf("expected dryer line, got:\n%s", output)
	}
}

func TestSessionStatusAllUnits(t *testing.T) {
	sess, _ := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Status(&buf, ""); err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "unit 0") || !strings.Contains(output, "unit 1") {
		t.Errorf("expected both units in output, got:\n%s", output)
	}
}

func TestSessionFeedReachesDevice(t *testing.T) {
	sess, devices := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Feed(&buf, "0", "1", "150", "60"); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	if !strings.Contains(buf.String(), "feeding hub_0_port_1 channel 1: 150 mm") {
		t.Errorf("expected confirmation, got: %s", buf.String())
	}
	if got := devices[pathA].LastInt(wire.MethodFeed, "length"); got != 150 {
		t.Errorf("expected length 150 on the wire, got %d", got)
	}
	if got := devices[pathA].LastInt(wire.MethodFeed, "speed"); got != 60 {
		t.Errorf("expected speed 60 on the wire, got %d", got)
	}
}

func TestSessionFeedRejectsBadArguments(t *testing.T) {
	sess, _ := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Feed(&buf, "0", "one", "150", ""); err == nil {
		t.Error("expected error for non-numeric channel")
	}
	if err := sess.Feed(&buf, "0", "1", "150", "fast"); err == nil {
		t.Error("expected error for non-numeric speed")
	}
}

func TestSessionRetractReachesDevice(t *testing.T) {
	sess, devices := testSession(t)
	devices[pathA].SetSlot(2, wire.SlotReady)

	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Retract(&buf, "0", "2", "120", ""); err != nil {
		t.Fatalf("Retract failed: %v", err)
	}
	if got := devices[pathA].LastInt(wire.MethodRetract, "length"); got != 120 {
		t.Errorf("expected length 120 on the wire, got %d", got)
	}
}

func TestSessionAssistModes(t *testing.T) {
	sess, devices := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Assist(&buf, "0", "2", "on"); err != nil {
		t.Fatalf("Assist on failed: %v", err)
	}
	if !devices[pathA].AssistEnabled(2) {
		t.Error("expected assist enabled on device")
	}

	if err := sess.Assist(&buf, "0", "2", "off"); err != nil {
		t.Fatalf("Assist off failed: %v", err)
	}
	if devices[pathA].AssistEnabled(2) {
		t.Error("expected assist disabled on device")
	}

	if err := sess.Assist(&buf, "0", "2", "maybe"); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestSessionDryerStartStop(t *testing.T) {
	sess, devices := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Dryer(&buf, "0", "start", []string{"55", "120"}); err != nil {
		t.Fatalf("Dryer start failed: %v", err)
	}
	if !strings.Contains(buf.String(), "target 55C for 120 min") {
		t.Errorf("expected start confirmation, got: %s", buf.String())
	}
	if devices[pathA].Dryer().Status != wire.DryerDrying {
		t.Error("expected device dryer running")
	}

	buf.Reset()
	if err := sess.Dryer(&buf, "0", "stop", nil); err != nil {
		t.Fatalf("Dryer stop failed: %v", err)
	}
	if devices[pathA].Dryer().Status != wire.DryerStopped {
		t.Error("expected device dryer stopped")
	}

	if err := sess.Dryer(&buf, "0", "pause", nil); err == nil {
		t.Error("expected error for invalid dryer action")
	}
}

func TestSessionReconnectSwapsUnit(t *testing.T) {
	sess, _ := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	old, err := sess.Resolve("0")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var buf bytes.Buffer
	if err := sess.Reconnect(&buf, "0"); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if !strings.Contains(buf.String(), "reconnected hub_0_port_1") {
		t.Errorf("expected confirmation, got: %s", buf.String())
	}

	fresh, err := sess.Resolve("0")
	if err != nil {
		t.Fatalf("Resolve after reconnect failed: %v", err)
	}
	if fresh == old {
		t.Error("expected a fresh unit after reconnect")
	}
	if old.Connected() {
		t.Error("expected old unit closed")
	}
	if !fresh.Connected() {
		t.Error("expected fresh unit connected")
	}
}

func TestSessionWatchStopsOnCancel(t *testing.T) {
	sess, _ := testSession(t)
	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	if err := sess.Watch(ctx, &buf, "0", 25*time.Millisecond); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "unit 0") {
		t.Errorf("expected poll lines, got:\n%s", output)
	}
	if !strings.Contains(output, "ch[empty empty empty empty]") {
		t.Errorf("expected channel summary, got:\n%s", output)
	}
}

func TestSessionUnitsListsRegistry(t *testing.T) {
	sess, _ := testSession(t)

	var buf bytes.Buffer
	if err := sess.Units(&buf); err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	if !strings.Contains(buf.String(), "no units connected") {
		t.Errorf("expected empty message, got: %s", buf.String())
	}

	if _, err := sess.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	buf.Reset()
	if err := sess.Units(&buf); err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "hub_0_port_1") || !strings.Contains(output, "hub_0_port_2") {
		t.Errorf("expected both units listed, got:\n%s", output)
	}
	if !strings.Contains(output, "connected") {
		t.Errorf("expected link state, got:\n%s", output)
	}
}
