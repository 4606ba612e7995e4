// Package unit drives one connected ACE as a channel-addressable device.
//
// A Unit wraps the live serial link of one physical unit and exposes its
// slots as channels with tracked occupancy. Operations map one-to-one
// onto protocol round trips; the unit serializes concurrent callers so
// the link never sees interleaved exchanges.
//
// # Channel State Machine
//
//	             feed                 back
//	empty/ready ──────► loaded ──────────► unloading
//	     ▲                                     │
//	     └───────────── get_status ◄───────────┘
//
// Occupancy after a retract is resolved by the hardware's own report on
// the next status poll, never inferred locally. Any failed or timed-out
// operation moves the touched channel to error; a later successful
// retract, or a status refresh showing the slot healthy, recovers it.
//
// # Status Merging
//
// Local channel state is a cache of the last successful poll. Status
// folds the hardware's coarse occupancy ("empty", "ready", "loading",
// "error") into the driver's finer states: a slot the hardware calls
// ready stays loaded if the driver fed it, because engagement past the
// unit is invisible to the unit itself.
//
// # Reconnection
//
// Link failure is terminal for the Unit: it reports not connected until
// torn down. Reconnect is explicit, re-probes the same topology key and
// builds a fresh Unit with the same ordinal; stale state is never
// resurrected.
package unit
