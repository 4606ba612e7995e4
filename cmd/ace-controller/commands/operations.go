package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/topeysoft/ace-go/pkg/unit"
	"github.com/topeysoft/ace-go/pkg/version"
)

// DefaultWatchInterval is the status poll period of watch and the
// console's poll loop.
const DefaultWatchInterval = 2 * time.Second

// Discover probes the bus and lists every identified unit without
// connecting to any of them.
func (s *Session) Discover(w io.Writer) error {
	found, err := s.Service.DiscoverAll()
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(w, "no units found")
		return nil
	}

	fmt.Fprintf(w, "%-4s %-16s %-20s %-10s %s\n", "ORD", "DEVICE", "MODEL", "FIRMWARE", "PORT")
	for _, d := range found {
		fmt.Fprintf(w, "%-4d %-16s %-20s %-10s %s\n",
			d.Identity.Ordinal, d.Identity.DeviceID(), d.Info.Model, d.Info.Firmware, d.Candidate.Path)
	}
	fmt.Fprintf(w, "%d unit(s) found\n", len(found))
	return nil
}

// Info shows one unit's identification and capability limits.
func (s *Session) Info(w io.Writer, arg string) error {
	u, err := s.Resolve(arg)
	if err != nil {
		return err
	}

	info := u.Info()
	profile := u.Profile()

	fmt.Fprintf(w, "Unit:     %s (ordinal %d)\n", s.Name(u), u.Identity().Ordinal)
	fmt.Fprintf(w, "Model:    %s\n", info.Model)
	if fw, err := version.ParseFirmware(info.Firmware); err == nil {
		fmt.Fprintf(w, "Firmware: %s\n", fw)
	} else {
		fmt.Fprintf(w, "Firmware: %s (unrecognized format)\n", info.Firmware)
	}
	if info.SerialNumber != "" {
		fmt.Fprintf(w, "Serial:   %s\n", info.SerialNumber)
	}
	fmt.Fprintf(w, "Channels: %d\n", u.ChannelCount())
	fmt.Fprintf(w, "Feed:     %d-%d mm/s\n", profile.Feed.MinSpeed, profile.Feed.MaxSpeed)
	fmt.Fprintf(w, "Dryer:    up to %d C\n", profile.Dryer.MaxTemp)
	return nil
}

// Status polls one unit, or all of them for an empty argument, and
// prints the channel and dryer state.
func (s *Session) Status(w io.Writer, arg string) error {
	units, err := s.resolveSet(arg)
	if err != nil {
		return err
	}
	for _, u := range units {
		s.printStatus(w, u)
	}
	return nil
}

func (s *Session) printStatus(w io.Writer, u *unit.Unit) {
	fmt.Fprintf(w, "unit %d  %s  %s\n", u.Identity().Ordinal, s.Name(u), u.Info().Model)

	snap, err := u.Status()
	if err != nil {
		fmt.Fprintf(w, "  status failed: %v\n", err)
		return
	}

	fmt.Fprintf(w, "  state: %s  temp: %dC  fan: %d\n", snap.UnitState, snap.Temp, snap.FanSpeed)
	for _, ch := range snap.Channels {
		fmt.Fprintf(w, "  channel %d: %s%s\n", ch.Index, ch.State, channelDetail(ch))
	}
	fmt.Fprintf(w, "  dryer: %s%s\n", snap.Dryer.State, dryerDetail(snap.Dryer))
}

// channelDetail renders the assist flag and material of one channel.
func channelDetail(ch unit.Channel) string {
	var parts []string
	if ch.FeedAssist {
		parts = append(parts, "assist")
	}
	if m := materialString(ch.Material); m != "" {
		parts = append(parts, m)
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + strings.Join(parts, "  ")
}

func materialString(m unit.Material) string {
	var parts []string
	if m.Name != "" {
		parts = append(parts, m.Name)
	}
	if m.Type != "" {
		parts = append(parts, m.Type)
	}
	if m.SKU != "" {
		parts = append(parts, m.SKU)
	}
	if len(m.Color) == 3 {
		parts = append(parts, fmt.Sprintf("#%02X%02X%02X", m.Color[0], m.Color[1], m.Color[2]))
	}
	return strings.Join(parts, " ")
}

func dryerDetail(d unit.Dryer) string {
	switch d.State {
	case unit.DryerHeating, unit.DryerRunning:
		return fmt.Sprintf("  target %dC  chamber %dC  %d min left", d.TargetTemp, d.CurrentTemp, d.RemainMinutes)
	case unit.DryerCooling:
		return fmt.Sprintf("  chamber %dC", d.CurrentTemp)
	default:
		return ""
	}
}

// Feed feeds filament from a channel toward the printer.
func (s *Session) Feed(w io.Writer, unitArg, channelArg, lengthArg, speedArg string) error {
	u, channel, length, speed, err := s.moveArgs(unitArg, channelArg, lengthArg, speedArg)
	if err != nil {
		return err
	}
	if err := u.Feed(channel, length, speed); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	fmt.Fprintf(w, "feeding %s channel %d: %d mm\n", s.Name(u), channel, length)
	return nil
}

// Retract pulls filament back from a channel.
func (s *Session) Retract(w io.Writer, unitArg, channelArg, lengthArg, speedArg string) error {
	u, channel, length, speed, err := s.moveArgs(unitArg, channelArg, lengthArg, speedArg)
	if err != nil {
		return err
	}
	if err := u.Retract(channel, length, speed); err != nil {
		return fmt.Errorf("retract: %w", err)
	}
	fmt.Fprintf(w, "retracting %s channel %d: %d mm\n", s.Name(u), channel, length)
	return nil
}

func (s *Session) moveArgs(unitArg, channelArg, lengthArg, speedArg string) (*unit.Unit, int, int, int, error) {
	u, err := s.Resolve(unitArg)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	channel, err := parseInt("channel", channelArg)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	length, err := parseInt("length", lengthArg)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	speed, err := parseSpeed(speedArg)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	return u, channel, length, speed, nil
}

// Assist toggles feed assist on one channel. Mode is "on" or "off".
func (s *Session) Assist(w io.Writer, unitArg, channelArg, mode string) error {
	u, err := s.Resolve(unitArg)
	if err != nil {
		return err
	}
	channel, err := parseInt("channel", channelArg)
	if err != nil {
		return err
	}

	var enabled bool
	switch strings.ToLower(mode) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Errorf("invalid assist mode %q (use on or off)", mode)
	}

	if err := u.SetFeedAssist(channel, enabled); err != nil {
		return fmt.Errorf("assist: %w", err)
	}
	if enabled {
		fmt.Fprintf(w, "feed assist on: %s channel %d\n", s.Name(u), channel)
	} else {
		fmt.Fprintf(w, "feed assist off: %s (all channels)\n", s.Name(u))
	}
	return nil
}

// Dryer starts or stops the drying cycle. For "start", args carries
// the target temperature and an optional duration in minutes.
func (s *Session) Dryer(w io.Writer, unitArg, sub string, args []string) error {
	u, err := s.Resolve(unitArg)
	if err != nil {
		return err
	}

	switch strings.ToLower(sub) {
	case "start":
		if len(args) < 1 {
			return fmt.Errorf("dryer start needs a temperature")
		}
		temp, err := parseInt("temperature", args[0])
		if err != nil {
			return err
		}
		minutes := 0
		if len(args) > 1 {
			if minutes, err = parseInt("duration", args[1]); err != nil {
				return err
			}
		}
		if err := u.StartDrying(temp, minutes); err != nil {
			return fmt.Errorf("dryer start: %w", err)
		}
		d := u.Dryer()
		fmt.Fprintf(w, "drying %s: target %dC for %d min\n", s.Name(u), d.TargetTemp, d.RemainMinutes)
		return nil

	case "stop":
		if err := u.StopDrying(); err != nil {
			return fmt.Errorf("dryer stop: %w", err)
		}
		fmt.Fprintf(w, "dryer stopped: %s (%s)\n", s.Name(u), u.Dryer().State)
		return nil

	default:
		return fmt.Errorf("invalid dryer action %q (use start or stop)", sub)
	}
}

// Material records a filament name against a channel.
func (s *Session) Material(w io.Writer, unitArg, channelArg, name string) error {
	u, err := s.Resolve(unitArg)
	if err != nil {
		return err
	}
	channel, err := parseInt("channel", channelArg)
	if err != nil {
		return err
	}
	if err := u.SetMaterial(channel, name); err != nil {
		return fmt.Errorf("material: %w", err)
	}
	fmt.Fprintf(w, "material for %s channel %d: %s\n", s.Name(u), channel, name)
	return nil
}

// Reconnect tears down one unit's link and rebuilds it from a fresh
// discovery pass.
func (s *Session) Reconnect(w io.Writer, unitArg string) error {
	u, err := s.Resolve(unitArg)
	if err != nil {
		return err
	}
	fresh, err := unit.Reconnect(s.Service, s.Registry, u)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "reconnected %s (%s %s)\n", s.Name(fresh), fresh.Info().Model, fresh.Info().Firmware)
	return nil
}

// Watch polls status on an interval and prints one line per unit per
// tick, until the context is cancelled. Poll failures are printed and
// do not stop the loop; a vanished unit may come back.
func (s *Session) Watch(ctx context.Context, w io.Writer, arg string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.watchTick(w, arg); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Session) watchTick(w io.Writer, arg string) error {
	units, err := s.resolveSet(arg)
	if err != nil {
		return err
	}
	now := time.Now().Format("15:04:05")
	for _, u := range units {
		snap, err := u.Status()
		if err != nil {
			fmt.Fprintf(w, "%s unit %d  poll failed: %v\n", now, u.Identity().Ordinal, err)
			continue
		}
		states := make([]string, len(snap.Channels))
		for i, ch := range snap.Channels {
			states[i] = ch.State.String()
		}
		fmt.Fprintf(w, "%s unit %d  %s  %dC  ch[%s]  dryer %s\n",
			now, u.Identity().Ordinal, snap.UnitState, snap.Temp,
			strings.Join(states, " "), snap.Dryer.State)
	}
	return nil
}
