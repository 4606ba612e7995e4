package unit

import (
	"fmt"
	"time"

	"github.com/topeysoft/ace-go/pkg/discovery"
	"github.com/topeysoft/ace-go/pkg/log"
	"github.com/topeysoft/ace-go/pkg/transport"
	"github.com/topeysoft/ace-go/pkg/wire"
)

// Connect opens an operational link to a discovered unit and wraps it.
// The discovery probe's link is gone by now; get_info over the fresh
// link re-verifies that the same port still answers. The initial status
// poll may fail without failing the connect (some units need a moment
// after the port opens); the cache fills on the next poll.
func Connect(d *discovery.Discovered, linkConfig transport.Config, config Config) (*Unit, error) {
	link, err := transport.Open(d.Candidate.Path, linkConfig)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.Candidate.Path, err)
	}

	resp, err := link.Send(wire.NewGetInfoCommand())
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("connect %s: %w", d.Candidate.Path, err)
	}
	info, err := wire.DecodeInfo(resp)
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("connect %s: %w", d.Candidate.Path, err)
	}

	u := New(d.Identity, *info, link, config)
	if _, err := u.Status(); err != nil {
		u.logError("initial status", err)
	}
	return u, nil
}

// ConnectAll discovers every reachable unit, connects each and adds
// them to the registry. Connect failures skip that unit only, matching
// discovery's per-candidate isolation. A key already registered is left
// alone and the fresh connection is discarded.
func ConnectAll(svc *discovery.Service, reg *Registry, config Config) ([]*Unit, error) {
	discovered, err := svc.DiscoverAll()
	if err != nil {
		return nil, err
	}

	var units []*Unit
	for _, d := range discovered {
		u, err := Connect(d, svc.LinkConfig(), config)
		if err != nil {
			logConnectError(config.Logger, d.Candidate.Path, "connect", err)
			continue
		}
		if err := reg.Add(u); err != nil {
			logConnectError(config.Logger, d.Candidate.Path, "register", err)
			u.Close()
			continue
		}
		units = append(units, u)
	}
	return units, nil
}

// Reconnect tears down a unit and builds a fresh one against the same
// topology key, keeping the ordinal. Reconnection is never automatic;
// only this call does it. On success the registry entry is replaced;
// when the identity has vanished the stale entry is removed and the
// error surfaced.
func Reconnect(svc *discovery.Service, reg *Registry, u *Unit) (*Unit, error) {
	identity := u.Identity()
	u.Close()

	d, err := svc.IdentifyKey(identity.TopologyKey, identity.Ordinal)
	if err != nil {
		reg.Remove(identity.TopologyKey)
		return nil, fmt.Errorf("reconnect %s: %w", identity.DeviceID(), err)
	}
	fresh, err := Connect(d, svc.LinkConfig(), u.config)
	if err != nil {
		reg.Remove(identity.TopologyKey)
		return nil, fmt.Errorf("reconnect %s: %w", identity.DeviceID(), err)
	}
	if prev := reg.Replace(fresh); prev != nil && prev != u {
		prev.Close()
	}
	return fresh, nil
}

func logConnectError(logger log.Logger, port, context string, err error) {
	if logger == nil {
		return
	}
	logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerUnit,
		Category:  log.CategoryError,
		Port:      port,
		Error: &log.ErrorEventData{
			Layer:   log.LayerUnit,
			Message: err.Error(),
			Context: context,
		},
	})
}
