// Package discovery enumerates and identifies ACE units on USB-serial.
//
// ACE units all enumerate with the same USB identity, and the kernel
// hands out tty names in whatever order devices wake up, so neither the
// device file nor the enumeration order can address a specific physical
// unit. Discovery builds stable identities in three steps:
//
// # Enumeration
//
// OS-visible serial ports are filtered to the ACE vendor/product pair.
// Each match must have a /dev/serial/by-path symlink; ports without one
// are skipped, because only the by-path name survives re-enumeration.
//
// # Identification
//
// Each candidate is probed over a short-lived link with get_info.
// Candidates that do not answer, or answer with something that is not
// an ACE info payload, are excluded from the pass. A probe failure
// never aborts the pass; probes across candidates run concurrently,
// one independent link each.
//
// # Ordinals
//
// Confirmed units sort by topology key (the USB port chain parsed from
// the by-path name) and receive ordinals 0..N-1 in that order. An
// operator can pin a topology key to a fixed ordinal via Config.Pins;
// pinned units always get their pinned value and the rest fill the
// remaining slots in topology order. Two passes over an unchanged
// topology therefore always produce the same identity for the same
// physical unit. Moving a unit to a different physical port changes
// its identity; that is accepted behavior.
//
// Topology keys come from the port a unit is cabled into. Hubs that
// report a flattened port path for every downstream device collapse
// all their units into one key; see Service.DiscoverAll.
package discovery
