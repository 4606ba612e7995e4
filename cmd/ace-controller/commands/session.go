// Package commands implements the ace-controller operations. Both the
// one-shot CLI and the interactive console dispatch into it, writing
// human output to an io.Writer.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/topeysoft/ace-go/pkg/discovery"
	"github.com/topeysoft/ace-go/pkg/unit"
)

// Session bundles what every command needs: the discovery service, the
// unit registry and the operator's per-unit configuration.
type Session struct {
	Service  *discovery.Service
	Registry *unit.Registry

	// UnitConfig returns the driver configuration for the unit at a
	// topology key. Nil applies zero-value defaults to every unit.
	UnitConfig func(topologyKey string) unit.Config

	// Names maps topology keys to operator-assigned display names.
	Names map[string]string
}

// Name returns the display name for a unit: the configured name when
// one exists, the topology-derived device ID otherwise.
func (s *Session) Name(u *unit.Unit) string {
	if name, ok := s.Names[u.Identity().TopologyKey]; ok && name != "" {
		return name
	}
	return u.Identity().DeviceID()
}

// Connect discovers units and connects every one not already in the
// registry. It returns the number of newly connected units. Individual
// connect failures are reported only when nothing connects at all, so
// one dead unit cannot hide the rest.
func (s *Session) Connect() (int, error) {
	found, err := s.Service.DiscoverAll()
	if err != nil {
		return 0, err
	}

	connected := 0
	var firstErr error
	for _, d := range found {
		if _, err := s.Registry.Get(d.Identity.TopologyKey); err == nil {
			continue
		}
		var cfg unit.Config
		if s.UnitConfig != nil {
			cfg = s.UnitConfig(d.Identity.TopologyKey)
		}
		u, err := unit.Connect(d, s.Service.LinkConfig(), cfg)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.Registry.Add(u); err != nil {
			u.Close()
			continue
		}
		connected++
	}

	if connected == 0 && s.Registry.Len() == 0 && firstErr != nil {
		return 0, firstErr
	}
	return connected, nil
}

// Resolve finds a registered unit by ordinal, topology key, or a
// substring of its device ID or configured name.
func (s *Session) Resolve(arg string) (*unit.Unit, error) {
	units := s.Registry.Units()
	if len(units) == 0 {
		return nil, errors.New("no units connected")
	}

	if n, err := strconv.Atoi(arg); err == nil {
		return s.Registry.ByOrdinal(n)
	}
	if u, err := s.Registry.Get(arg); err == nil {
		return u, nil
	}

	needle := strings.ToLower(arg)
	var match *unit.Unit
	for _, u := range units {
		id := strings.ToLower(u.Identity().DeviceID())
		name := strings.ToLower(s.Name(u))
		if strings.Contains(id, needle) || strings.Contains(name, needle) {
			if match != nil {
				return nil, fmt.Errorf("unit %q is ambiguous", arg)
			}
			match = u
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no unit matches %q", arg)
	}
	return match, nil
}

// resolveSet returns the units a command addresses: all of them for an
// empty argument, a single resolved unit otherwise.
func (s *Session) resolveSet(arg string) ([]*unit.Unit, error) {
	if arg == "" {
		units := s.Registry.Units()
		if len(units) == 0 {
			return nil, errors.New("no units connected")
		}
		return units, nil
	}
	u, err := s.Resolve(arg)
	if err != nil {
		return nil, err
	}
	return []*unit.Unit{u}, nil
}

// Units lists the registered units.
func (s *Session) Units(w io.Writer) error {
	units := s.Registry.Units()
	if len(units) == 0 {
		fmt.Fprintln(w, "no units connected")
		return nil
	}
	fmt.Fprintf(w, "%-4s %-16s %-20s %-10s %s\n", "ORD", "UNIT", "MODEL", "FIRMWARE", "LINK")
	for _, u := range units {
		state := "connected"
		if !u.Connected() {
			state = "disconnected"
		}
		fmt.Fprintf(w, "%-4d %-16s %-20s %-10s %s\n",
			u.Identity().Ordinal, s.Name(u), u.Info().Model, u.Info().Firmware, state)
	}
	return nil
}

func parseInt(name, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, arg)
	}
	return n, nil
}

// parseSpeed treats an absent argument as zero, which the driver
// replaces with its configured default.
func parseSpeed(arg string) (int, error) {
	if arg == "" {
		return 0, nil
	}
	return parseInt("speed", arg)
}
