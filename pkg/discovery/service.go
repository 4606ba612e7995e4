package discovery

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/topeysoft/ace-go/pkg/log"
	"github.com/topeysoft/ace-go/pkg/transport"
	"github.com/topeysoft/ace-go/pkg/wire"
)

// Config configures a discovery Service.
type Config struct {
	// Lister enumerates serial ports (default: system enumeration).
	Lister PortLister

	// PortFactory opens probe links (default: real serial ports).
	PortFactory transport.PortFactory

	// BaudRate for probe links (default: transport.DefaultBaudRate).
	BaudRate int

	// ProbeTimeout bounds each candidate's identification exchange
	// (default: DefaultProbeTimeout).
	ProbeTimeout time.Duration

	// SettleDelay is the post-open pause for probe links. Defaults to
	// transport.DefaultSettleDelay when PortFactory is nil; injected
	// ports skip the pause unless one is set explicitly.
	SettleDelay time.Duration

	// Pins maps topology keys to fixed ordinals, the operator's
	// device_index assignments. Keys absent from a pass are inert.
	Pins map[string]int

	// Logger receives discovery events. Nil disables logging.
	Logger log.Logger
}

// Service discovers and identifies ACE units.
type Service struct {
	config Config
}

// NewService creates a discovery service.
func NewService(config Config) *Service {
	if config.Lister == nil {
		config.Lister = systemLister{}
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	if config.PortFactory == nil && config.SettleDelay == 0 {
		config.SettleDelay = transport.DefaultSettleDelay
	}
	return &Service{config: config}
}

// LinkConfig returns the transport configuration the service probes
// with. Callers connecting to a discovered unit reuse it so the
// operational link behaves like the probe link did.
func (s *Service) LinkConfig() transport.Config {
	return transport.Config{
		BaudRate:       s.config.BaudRate,
		RequestTimeout: s.config.ProbeTimeout,
		SettleDelay:    s.config.SettleDelay,
		Logger:         s.config.Logger,
		PortFactory:    s.config.PortFactory,
	}
}

// Enumerate lists candidates matching the ACE identity, sorted by
// topology key. Matches without a by-path symlink are skipped: kernel
// tty names move across reconnects, so a port that cannot be named
// stably cannot be addressed safely.
func (s *Service) Enumerate() ([]Candidate, error) {
	ports, err := s.config.Lister.List()
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, p := range ports {
		if !matchesIdentity(p) {
			continue
		}
		if p.ByPath == "" {
			s.logError("enumerate", fmt.Errorf("no by-path symlink for %s, skipping", p.Device))
			continue
		}
		key, err := ParseTopologyKey(p.ByPath)
		if err != nil {
			s.logError("enumerate", err)
			continue
		}
		candidates = append(candidates, Candidate{
			Path:         p.ByPath,
			TTYPath:      p.Device,
			TopologyKey:  key,
			VendorID:     p.VendorID,
			ProductID:    p.ProductID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}

	// Ties on topology key happen when a hub flattens its port paths;
	// breaking them on the symlink name keeps passes deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].TopologyKey != candidates[j].TopologyKey {
			return candidates[i].TopologyKey < candidates[j].TopologyKey
		}
		return candidates[i].Path < candidates[j].Path
	})
	return candidates, nil
}

// matchesIdentity reports whether a port looks like an ACE unit: the
// fixed vendor/product pair, or the product string for adapters that
// renumber ids.
func matchesIdentity(p PortInfo) bool {
	if p.VendorID == VendorID && p.ProductID == ProductID {
		return true
	}
	return p.IsUSB && strings.Contains(strings.ToUpper(p.Product), ProductName)
}

// Identify probes one candidate over a short-lived link and returns
// its identification payload. Timeouts and dead links map to
// ErrNoResponse, answers that are not an ACE info payload to
// ErrUnexpectedReply.
func (s *Service) Identify(cand Candidate) (*wire.Info, error) {
	link, err := transport.Open(cand.Path, s.LinkConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	defer link.Close()

	resp, err := link.SendTimeout(wire.NewGetInfoCommand(), s.config.ProbeTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	info, err := wire.DecodeInfo(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	return info, nil
}

// DiscoverAll runs a full pass: enumerate, probe every candidate, drop
// the unresponsive, collapse duplicate topology keys and assign stable
// ordinals. Probes run concurrently, one independent link per
// candidate; a probe failure excludes that candidate only.
//
// Hubs that report a flattened port path give every downstream unit
// the same topology key; such units collapse to the first responder
// and the rest must be recabled to distinct ports.
func (s *Service) DiscoverAll() ([]*Discovered, error) {
	candidates, err := s.Enumerate()
	if err != nil {
		return nil, err
	}

	results := make([]*Discovered, len(candidates))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand Candidate) {
			defer wg.Done()
			info, err := s.Identify(cand)
			if err != nil {
				s.logError("identify "+cand.Path, err)
				return
			}
			results[i] = &Discovered{Info: *info, Candidate: cand}
		}(i, cand)
	}
	wg.Wait()

	// Candidates arrive sorted, so keeping the first responder per key
	// is deterministic.
	seen := make(map[string]bool)
	var units []*Discovered
	for _, d := range results {
		if d == nil || seen[d.Candidate.TopologyKey] {
			continue
		}
		seen[d.Candidate.TopologyKey] = true
		units = append(units, d)
	}

	if err := assignOrdinals(units, s.config.Pins); err != nil {
		return nil, err
	}
	for _, d := range units {
		s.logIdentified(d)
	}
	return units, nil
}

// IdentifyKey re-probes the unit at one topology key, for explicit
// reconnects. The unit keeps the ordinal it was assigned before;
// re-probing never renumbers its neighbors.
func (s *Service) IdentifyKey(topologyKey string, ordinal int) (*Discovered, error) {
	candidates, err := s.Enumerate()
	if err != nil {
		return nil, err
	}
	for _, cand := range candidates {
		if cand.TopologyKey != topologyKey {
			continue
		}
		info, err := s.Identify(cand)
		if err != nil {
			return nil, err
		}
		d := &Discovered{
			Identity:  Identity{TopologyKey: topologyKey, Ordinal: ordinal},
			Info:      *info,
			Candidate: cand,
		}
		s.logIdentified(d)
		return d, nil
	}
	return nil, fmt.Errorf("%w: topology key %s", ErrNotFound, topologyKey)
}

// assignOrdinals gives every unit its stable ordinal. Pinned units
// always take their pinned value; the rest fill the lowest free
// ordinals in topology order. Pins must be non-negative and must not
// collide for units present in the same pass.
func assignOrdinals(units []*Discovered, pins map[string]int) error {
	taken := make(map[int]string, len(units))

	for _, d := range units {
		ord, ok := pins[d.Candidate.TopologyKey]
		if !ok {
			continue
		}
		if ord < 0 {
			return fmt.Errorf("%w: %s pinned to %d", ErrInvalidPin, d.Candidate.TopologyKey, ord)
		}
		if other, dup := taken[ord]; dup {
			return fmt.Errorf("%w: ordinal %d pinned to both %s and %s",
				ErrInvalidPin, ord, other, d.Candidate.TopologyKey)
		}
		taken[ord] = d.Candidate.TopologyKey
		d.Identity = Identity{TopologyKey: d.Candidate.TopologyKey, Ordinal: ord}
	}

	next := 0
	for _, d := range units {
		if _, pinned := pins[d.Candidate.TopologyKey]; pinned {
			continue
		}
		for {
			if _, used := taken[next]; !used {
				break
			}
			next++
		}
		taken[next] = d.Candidate.TopologyKey
		d.Identity = Identity{TopologyKey: d.Candidate.TopologyKey, Ordinal: next}
	}
	return nil
}

func (s *Service) logIdentified(d *Discovered) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerDiscovery,
		Category:  log.CategoryState,
		Port:      d.Candidate.Path,
		UnitID:    d.Identity.DeviceID(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityUnit,
			Channel:  -1,
			NewState: "identified",
			Reason:   fmt.Sprintf("%s %s at ordinal %d", d.Info.Model, d.Info.Firmware, d.Identity.Ordinal),
		},
	})
}

func (s *Service) logError(context string, err error) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerDiscovery,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerDiscovery,
			Message: err.Error(),
			Context: context,
		},
	})
}
