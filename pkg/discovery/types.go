package discovery

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/topeysoft/ace-go/pkg/wire"
)

// USB identity of ACE units.
const (
	// VendorID is the USB vendor id ACE units enumerate with.
	VendorID = 0x28E9

	// ProductID is the USB product id ACE units enumerate with.
	ProductID = 0x018A

	// ProductName matches units behind adapters that renumber VID/PID
	// but keep the product string.
	ProductName = "ACE"
)

// Timing constants.
const (
	// DefaultProbeTimeout bounds one candidate's identification exchange.
	DefaultProbeTimeout = 2 * time.Second
)

// Discovery errors.
var (
	// ErrNoResponse indicates a candidate did not answer its probe.
	ErrNoResponse = errors.New("no response to identification probe")

	// ErrUnexpectedReply indicates a candidate answered with something
	// that is not an ACE identification payload.
	ErrUnexpectedReply = errors.New("unexpected identification reply")

	// ErrNotFound indicates no unit with the requested identity exists.
	ErrNotFound = errors.New("unit not found")

	// ErrInvalidPin indicates an unusable ordinal pin configuration.
	ErrInvalidPin = errors.New("invalid ordinal pin")
)

// PortInfo describes one OS-visible serial port as reported by the
// enumerator. ByPath is empty when the port has no stable symlink.
type PortInfo struct {
	Device       string
	ByPath       string
	IsUSB        bool
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	Product      string
}

// Candidate is an enumerated serial endpoint that looks like an ACE
// unit. Candidates are recomputed on every discovery pass, never
// persisted.
type Candidate struct {
	// Path is the by-path device node the unit is opened on.
	Path string

	// TTYPath is the kernel tty node, kept for logs only.
	TTYPath string

	// TopologyKey identifies the USB port chain, e.g. "1-1.2".
	TopologyKey string

	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	Product      string
}

// Identity is the stable identity of one physical unit.
type Identity struct {
	// TopologyKey derives from the USB port chain. It survives reboots
	// and re-enumeration; re-plugging the unit into a different port
	// changes it.
	TopologyKey string

	// Ordinal addresses the unit. Assigned in topology order unless
	// pinned through Config.Pins.
	Ordinal int
}

var nonIdentChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DeviceID renders the identity as an identifier safe for use in
// configuration keys and log fields, e.g. "hub_1_port_1_2" for
// topology key "1-1.2".
func (id Identity) DeviceID() string {
	bus, ports, ok := strings.Cut(id.TopologyKey, "-")
	if !ok {
		return nonIdentChars.ReplaceAllString("usb_"+id.TopologyKey, "_")
	}
	return nonIdentChars.ReplaceAllString(fmt.Sprintf("hub_%s_port_%s", bus, ports), "_")
}

// Discovered is one live unit confirmed by an identification probe.
type Discovered struct {
	Identity  Identity
	Info      wire.Info
	Candidate Candidate
}

// byPathPattern extracts the USB port chain from a by-path symlink
// name such as "pci-0000:00:14.0-usb-0:1.2:1.0-port0". The first
// capture is the root hub, the second is the port chain; the trailing
// config.interface pair is not part of the physical location.
var byPathPattern = regexp.MustCompile(`-usb(?:v\d+)?-(\d+):([0-9.]+):`)

// ParseTopologyKey derives the topology key from a by-path symlink.
func ParseTopologyKey(byPath string) (string, error) {
	m := byPathPattern.FindStringSubmatch(byPath)
	if m == nil {
		return "", fmt.Errorf("no usb port chain in by-path name %q", byPath)
	}
	return m[1] + "-" + m[2], nil
}
