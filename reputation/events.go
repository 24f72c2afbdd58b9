// Package reputation holds the signed-delta event table NodeList applies to
// a node's long-term score.
package reputation

import "math"

// Event names a reputation-affecting occurrence. The zero value is not a
// valid event.
type Event string

const (
	ManualBan        Event = "ManualBan"
	SwapMisbehavior  Event = "SwapMisbehavior"
	SwapAbuse        Event = "SwapAbuse"
	WireProtocolErr  Event = "WireProtocolErr"
	InvalidAuth      Event = "InvalidAuth"
	SwapSuccess      Event = "SwapSuccess"
)

// BanThreshold is the score below which a node is auto-banned.
const BanThreshold = -100

// MinScore is used for ManualBan: a delta that can never be offset by
// subsequent positive events without an explicit unban.
const MinScore = math.MinInt32

// deltas is the signed-delta table each event contributes.
var deltas = map[Event]int{
	ManualBan:       MinScore,
	SwapMisbehavior: -50,
	SwapAbuse:       -100,
	WireProtocolErr: -10,
	InvalidAuth:     -20,
	SwapSuccess:     1,
}

// Delta returns the signed score contribution of an event. Unknown events
// contribute zero.
func Delta(e Event) int {
	return deltas[e]
}

// Valid reports whether e is a recognized event name.
func Valid(e Event) bool {
	_, ok := deltas[e]
	return ok
}
