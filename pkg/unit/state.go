package unit

import "github.com/topeysoft/ace-go/pkg/wire"

// ChannelState is the driver's occupancy classification of one slot.
type ChannelState uint8

const (
	// ChannelEmpty indicates no filament in the slot.
	ChannelEmpty ChannelState = iota

	// ChannelReady indicates filament seated but not fed downstream.
	ChannelReady

	// ChannelLoaded indicates filament fed to the downstream point.
	ChannelLoaded

	// ChannelUnloading indicates a retract was issued and the hardware
	// has not yet reported the resulting occupancy.
	ChannelUnloading

	// ChannelError indicates the last operation on the slot failed.
	ChannelError
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case ChannelEmpty:
		return "empty"
	case ChannelReady:
		return "ready"
	case ChannelLoaded:
		return "loaded"
	case ChannelUnloading:
		return "unloading"
	case ChannelError:
		return "error"
	default:
		return "unknown"
	}
}

// DryerState is the dryer's sub-state as derived from status polls.
type DryerState uint8

const (
	// DryerIdle indicates the dryer is off and near ambient.
	DryerIdle DryerState = iota

	// DryerHeating indicates the dryer is on and still climbing to the
	// target temperature.
	DryerHeating

	// DryerRunning indicates the dryer is on and holding temperature.
	DryerRunning

	// DryerCooling indicates the dryer is off but the chamber is still
	// hot. Cooldown is asynchronous in the hardware.
	DryerCooling
)

// String returns the state name.
func (s DryerState) String() string {
	switch s {
	case DryerIdle:
		return "idle"
	case DryerHeating:
		return "heating"
	case DryerRunning:
		return "running"
	case DryerCooling:
		return "cooling"
	default:
		return "unknown"
	}
}

const (
	// heatingTolerance is how many degrees below target still count as
	// heating rather than running.
	heatingTolerance = 3

	// coolingFloor is the chamber temperature at or above which a
	// stopped dryer reads cooling instead of idle.
	coolingFloor = 40
)

// Material is the filament metadata of one channel: a caller-supplied
// name plus whatever the spool RFID tag reported.
type Material struct {
	Name  string
	SKU   string
	Type  string
	Color []int
}

// Channel is the driver's cached view of one slot.
type Channel struct {
	Index      int
	State      ChannelState
	FeedAssist bool
	Material   Material
}

// Dryer is the driver's cached view of the dryer.
type Dryer struct {
	State         DryerState
	TargetTemp    int
	CurrentTemp   int
	RemainMinutes int
}

// Snapshot is the full driver view of a unit after a status poll.
type Snapshot struct {
	// UnitState is the firmware's own top-level status string,
	// e.g. "ready" or "busy".
	UnitState string

	Temp     int
	FanSpeed int
	Channels []Channel
	Dryer    Dryer
}

// mergeChannelState folds a hardware-reported occupancy into the local
// state. The hardware only knows about its own slot: "ready" means
// filament seated there, so a channel the driver fed downstream stays
// loaded. "loading" is transient and leaves local state alone.
func mergeChannelState(local ChannelState, hardware string) ChannelState {
	switch hardware {
	case wire.SlotEmpty:
		return ChannelEmpty
	case wire.SlotError:
		return ChannelError
	case wire.SlotLoading:
		return local
	case wire.SlotReady:
		switch local {
		case ChannelLoaded:
			return ChannelLoaded
		default:
			return ChannelReady
		}
	default:
		return ChannelError
	}
}

// dryerStateFrom derives the dryer sub-state from one status payload.
func dryerStateFrom(st *wire.Status) DryerState {
	if st.Dryer.Status == wire.DryerDrying {
		if st.Temp+heatingTolerance < st.Dryer.TargetTemp {
			return DryerHeating
		}
		return DryerRunning
	}
	if st.Temp >= coolingFloor {
		return DryerCooling
	}
	return DryerIdle
}
