package unit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/topeysoft/ace-go/pkg/discovery"
	"github.com/topeysoft/ace-go/pkg/log"
	"github.com/topeysoft/ace-go/pkg/transport"
	"github.com/topeysoft/ace-go/pkg/version"
	"github.com/topeysoft/ace-go/pkg/wire"
)

// Unit errors.
var (
	ErrInvalidChannel    = errors.New("invalid channel index")
	ErrInvalidTransition = errors.New("operation not valid in channel state")
	ErrHardwareRejected  = errors.New("hardware rejected command")
	ErrNotConnected      = errors.New("unit not connected")
)

// DefaultSpeed is the feed and retract speed used when the caller
// passes none and the configuration sets none.
const DefaultSpeed = 50

// Config tunes a Unit. Zero values get defaults.
type Config struct {
	// FeedSpeed and RetractSpeed are used when an operation passes
	// speed <= 0. Both default to DefaultSpeed. Speeds are clamped to
	// the model profile's limits either way.
	FeedSpeed    int
	RetractSpeed int

	// Channels overrides the model profile's channel count.
	Channels int

	// Logger receives unit events. Nil disables logging.
	Logger log.Logger
}

// Unit drives one connected ACE. All operations are serialized; a
// second caller blocks until the first's round trip completes.
type Unit struct {
	identity discovery.Identity
	info     wire.Info
	profile  version.ModelProfile
	link     *transport.Link
	config   Config

	mu       sync.Mutex
	channels []Channel
	dryer    Dryer
	closed   bool
}

// New wraps an open link as a Unit. The channel count is fixed here,
// from the model profile unless the configuration overrides it.
func New(identity discovery.Identity, info wire.Info, link *transport.Link, config Config) *Unit {
	if config.FeedSpeed <= 0 {
		config.FeedSpeed = DefaultSpeed
	}
	if config.RetractSpeed <= 0 {
		config.RetractSpeed = DefaultSpeed
	}

	profile, _ := version.Lookup(info.Model)
	count := config.Channels
	if count <= 0 {
		count = profile.Channels
	}

	u := &Unit{
		identity: identity,
		info:     info,
		profile:  profile,
		link:     link,
		config:   config,
		channels: make([]Channel, count),
	}
	for i := range u.channels {
		u.channels[i].Index = i
	}
	u.logUnitState("", "connected",
		fmt.Sprintf("%s %s at ordinal %d", info.Model, info.Firmware, identity.Ordinal))
	u.checkFirmware()
	return u
}

// checkFirmware records firmware older than the profile's known-good
// minimum. Old firmware is advisory only; commands are still sent.
func (u *Unit) checkFirmware() {
	minimum, err := version.ParseFirmware(u.profile.MinFirmware)
	if err != nil {
		return
	}
	fw, err := version.ParseFirmware(u.info.Firmware)
	if err != nil || fw.AtLeast(minimum) {
		return
	}
	u.logError("firmware check", fmt.Errorf("firmware %s older than known good %s for %s",
		u.info.Firmware, u.profile.MinFirmware, u.profile.Name))
}

// Identity returns the unit's stable identity.
func (u *Unit) Identity() discovery.Identity { return u.identity }

// Info returns the model and firmware identification read at connect.
func (u *Unit) Info() wire.Info { return u.info }

// Profile returns the unit's capability profile.
func (u *Unit) Profile() version.ModelProfile { return u.profile }

// Connected reports whether the unit can still reach its hardware.
func (u *Unit) Connected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.closed && !u.link.Closed()
}

// ChannelCount returns the fixed number of channels.
func (u *Unit) ChannelCount() int { return len(u.channels) }

// Channel returns the cached view of one channel.
func (u *Unit) Channel(index int) (Channel, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if index < 0 || index >= len(u.channels) {
		return Channel{}, fmt.Errorf("%w: %d", ErrInvalidChannel, index)
	}
	return cloneChannel(u.channels[index]), nil
}

// Channels returns cached views of all channels.
func (u *Unit) Channels() []Channel {
	u.mu.Lock()
	defer u.mu.Unlock()
	return cloneChannels(u.channels)
}

// Dryer returns the cached dryer view.
func (u *Unit) Dryer() Dryer {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dryer
}

// Feed drives length millimeters of filament forward on one channel.
// Valid from empty and ready; the channel is loaded afterwards. A zero
// or negative speed selects the configured default. The driver never
// retries; a timed-out feed leaves the channel in error and retry
// policy with the caller.
func (u *Unit) Feed(channel, length, speed int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.checkChannelLocked(channel); err != nil {
		return err
	}
	state := u.channels[channel].State
	if state != ChannelEmpty && state != ChannelReady {
		return fmt.Errorf("%w: feed on channel %d while %s", ErrInvalidTransition, channel, state)
	}

	speed = u.clampSpeed(speed, u.config.FeedSpeed)
	if err := u.exchangeLocked(channel, "feed", wire.NewFeedCommand(channel, length, speed)); err != nil {
		return err
	}
	u.setChannelStateLocked(channel, ChannelLoaded, "feed complete")
	return nil
}

// Retract pulls length millimeters of filament back on one channel.
// Valid from loaded and ready, and from error and unloading as the
// recovery path. The channel reads unloading until the next status poll
// reports whether the slot cleared.
func (u *Unit) Retract(channel, length, speed int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.checkChannelLocked(channel); err != nil {
		return err
	}
	if u.channels[channel].State == ChannelEmpty {
		return fmt.Errorf("%w: retract on empty channel %d", ErrInvalidTransition, channel)
	}

	speed = u.clampSpeed(speed, u.config.RetractSpeed)
	if err := u.exchangeLocked(channel, "retract", wire.NewRetractCommand(channel, length, speed)); err != nil {
		return err
	}
	u.setChannelStateLocked(channel, ChannelUnloading, "retract issued")
	return nil
}

// SetFeedAssist enables or disables feed assist. Occupancy is not
// affected. Disabling is unit-wide in the firmware, so it clears the
// assist flag on every channel.
func (u *Unit) SetFeedAssist(channel int, enabled bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.checkChannelLocked(channel); err != nil {
		return err
	}

	if enabled {
		if err := u.exchangeLocked(channel, "feed assist", wire.NewFeedAssistCommand(channel)); err != nil {
			return err
		}
		u.channels[channel].FeedAssist = true
		return nil
	}

	if err := u.exchangeLocked(channel, "feed assist off", wire.NewFeedAssistOffCommand()); err != nil {
		return err
	}
	for i := range u.channels {
		u.channels[i].FeedAssist = false
	}
	return nil
}

// StartDrying starts the dryer at temp degrees Celsius for the given
// number of minutes. Temperatures above the model's dryer limit are
// capped to it; a duration of zero or less selects the model default.
func (u *Unit) StartDrying(temp, minutes int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if temp < 0 {
		temp = 0
	}
	if limit := u.profile.Dryer.MaxTemp; temp > limit {
		temp = limit
	}
	if minutes <= 0 {
		minutes = u.profile.Dryer.DefaultDuration
	}

	if err := u.sendUnitLocked("dryer start", wire.NewDryerStartCommand(temp, minutes)); err != nil {
		return err
	}
	u.dryer.TargetTemp = temp
	u.dryer.RemainMinutes = minutes
	u.setDryerStateLocked(DryerHeating, fmt.Sprintf("drying at %d°C for %d min", temp, minutes))
	return nil
}

// StopDrying stops the dryer. The stop is advisory: the chamber cools
// on its own and reads cooling until it falls below the cooling floor.
func (u *Unit) StopDrying() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.sendUnitLocked("dryer stop", wire.NewDryerStopCommand()); err != nil {
		return err
	}
	u.dryer.TargetTemp = 0
	u.dryer.RemainMinutes = 0
	next := DryerIdle
	if u.dryer.CurrentTemp >= coolingFloor {
		next = DryerCooling
	}
	u.setDryerStateLocked(next, "dryer stopped")
	return nil
}

// Status polls the unit and refreshes every channel and the dryer from
// the authoritative hardware response. Cached state is only ever as
// fresh as the last successful poll. A hardware-empty slot clears the
// channel's material record.
func (u *Unit) Status() (*Snapshot, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil, ErrNotConnected
	}
	resp, err := u.sendLocked(wire.NewGetStatusCommand())
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	st, err := wire.DecodeStatus(resp)
	if err != nil {
		u.logError("get status", err)
		return nil, fmt.Errorf("get status: %w", err)
	}

	u.applyStatusLocked(st)
	return &Snapshot{
		UnitState: st.Status,
		Temp:      st.Temp,
		FanSpeed:  st.FanSpeed,
		Channels:  cloneChannels(u.channels),
		Dryer:     u.dryer,
	}, nil
}

// SetMaterial records caller-supplied material metadata on one channel.
// Purely local; the hardware is not involved.
func (u *Unit) SetMaterial(channel int, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if channel < 0 || channel >= len(u.channels) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	u.channels[channel].Material.Name = name
	return nil
}

// Close tears the unit down and closes its link. Safe to call twice.
func (u *Unit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	err := u.link.Close()
	u.logUnitState("connected", "closed", "torn down")
	return err
}

// applyStatusLocked folds one status payload into the cache.
func (u *Unit) applyStatusLocked(st *wire.Status) {
	for _, slot := range st.Slots {
		if slot.Index < 0 || slot.Index >= len(u.channels) {
			u.logError("status", fmt.Errorf("slot index %d outside %d channels", slot.Index, len(u.channels)))
			continue
		}
		ch := &u.channels[slot.Index]
		next := mergeChannelState(ch.State, slot.Status)
		if next == ChannelError && ch.State != ChannelError && !validSlotStatus(slot.Status) {
			u.logError("status", fmt.Errorf("slot %d reported unknown status %q", slot.Index, slot.Status))
		}
		u.setChannelStateLocked(slot.Index, next, "status refresh")

		if next == ChannelEmpty {
			ch.Material = Material{}
			continue
		}
		if slot.SKU != "" {
			ch.Material.SKU = slot.SKU
		}
		if slot.Type != "" {
			ch.Material.Type = slot.Type
		}
		if len(slot.Color) > 0 {
			ch.Material.Color = append([]int(nil), slot.Color...)
		}
	}

	u.dryer.TargetTemp = st.Dryer.TargetTemp
	u.dryer.CurrentTemp = st.Temp
	u.dryer.RemainMinutes = st.Dryer.RemainTime
	u.setDryerStateLocked(dryerStateFrom(st), "status refresh")
}

func validSlotStatus(s string) bool {
	switch s {
	case wire.SlotEmpty, wire.SlotReady, wire.SlotLoading, wire.SlotError:
		return true
	}
	return false
}

// checkChannelLocked validates connectivity and the channel index.
func (u *Unit) checkChannelLocked(channel int) error {
	if u.closed {
		return ErrNotConnected
	}
	if channel < 0 || channel >= len(u.channels) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return nil
}

// exchangeLocked runs one channel operation round trip. Transport
// failures and hardware rejections both leave the channel in error.
func (u *Unit) exchangeLocked(channel int, op string, cmd *wire.Command) error {
	resp, err := u.sendLocked(cmd)
	if err != nil {
		u.setChannelStateLocked(channel, ChannelError, op+" failed")
		return fmt.Errorf("%s channel %d: %w", op, channel, err)
	}
	if err := resp.Err(); err != nil {
		u.setChannelStateLocked(channel, ChannelError, op+" rejected")
		return fmt.Errorf("%s channel %d: %w: %v", op, channel, ErrHardwareRejected, err)
	}
	return nil
}

// sendUnitLocked runs one unit-level round trip with no channel to
// blame on failure.
func (u *Unit) sendUnitLocked(op string, cmd *wire.Command) error {
	if u.closed {
		return ErrNotConnected
	}
	resp, err := u.sendLocked(cmd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrHardwareRejected, err)
	}
	return nil
}

// sendLocked issues one command on the link, folding link death into
// the unit's own lifecycle.
func (u *Unit) sendLocked(cmd *wire.Command) (*wire.Response, error) {
	resp, err := u.link.Send(cmd)
	if err != nil {
		if errors.Is(err, transport.ErrDisconnected) && !u.closed {
			u.closed = true
			u.logUnitState("connected", "disconnected", err.Error())
		}
		return nil, err
	}
	return resp, nil
}

func (u *Unit) clampSpeed(speed, fallback int) int {
	if speed <= 0 {
		speed = fallback
	}
	if speed < u.profile.Feed.MinSpeed {
		return u.profile.Feed.MinSpeed
	}
	if speed > u.profile.Feed.MaxSpeed {
		return u.profile.Feed.MaxSpeed
	}
	return speed
}

func (u *Unit) setChannelStateLocked(channel int, next ChannelState, reason string) {
	prev := u.channels[channel].State
	if prev == next {
		return
	}
	u.channels[channel].State = next
	u.logStateChange(&log.StateChangeEvent{
		Entity:   log.StateEntityChannel,
		Channel:  channel,
		OldState: prev.String(),
		NewState: next.String(),
		Reason:   reason,
	})
}

func (u *Unit) setDryerStateLocked(next DryerState, reason string) {
	prev := u.dryer.State
	if prev == next {
		return
	}
	u.dryer.State = next
	u.logStateChange(&log.StateChangeEvent{
		Entity:   log.StateEntityDryer,
		Channel:  -1,
		OldState: prev.String(),
		NewState: next.String(),
		Reason:   reason,
	})
}

func (u *Unit) logUnitState(old, new, reason string) {
	u.logStateChange(&log.StateChangeEvent{
		Entity:   log.StateEntityUnit,
		Channel:  -1,
		OldState: old,
		NewState: new,
		Reason:   reason,
	})
}

func (u *Unit) logStateChange(change *log.StateChangeEvent) {
	if u.config.Logger == nil {
		return
	}
	u.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: u.link.ConnectionID(),
		Layer:        log.LayerUnit,
		Category:     log.CategoryState,
		Port:         u.link.Path(),
		UnitID:       u.identity.DeviceID(),
		StateChange:  change,
	})
}

func (u *Unit) logError(context string, err error) {
	if u.config.Logger == nil {
		return
	}
	u.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: u.link.ConnectionID(),
		Layer:        log.LayerUnit,
		Category:     log.CategoryError,
		Port:         u.link.Path(),
		UnitID:       u.identity.DeviceID(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerUnit,
			Message: err.Error(),
			Context: context,
		},
	})
}

func cloneChannel(ch Channel) Channel {
	out := ch
	out.Material.Color = append([]int(nil), ch.Material.Color...)
	return out
}

func cloneChannels(channels []Channel) []Channel {
	out := make([]Channel, len(channels))
	for i, ch := range channels {
		out[i] = cloneChannel(ch)
	}
	return out
}
