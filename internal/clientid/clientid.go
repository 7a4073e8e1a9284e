// Package clientid defines the internal client-slot identifier shared by
// the client/proxy map, the update cache's subscriber sets, and the
// dispatch worker pool.
package clientid

// ID is an internal client slot number, 1-255. Zero (None) means "no
// client" / "not found" (spec §4.5).
type ID uint8

// None is the sentinel for "no client allocated".
const None ID = 0

// Max is the highest assignable client ID; slots are 1..Max (spec §3).
const Max = 255
