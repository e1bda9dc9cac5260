package types

import (
	"sort"
	"strings"
)

// AttrPlayer is the attribute carrying the bech32 player address on events
// scoped to a single participant.
const AttrPlayer = "player"

// Event is the flattened form of a game event as buffered, streamed and
// archived.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent returns an event of typ with an empty attribute set.
func NewEvent(typ string) *Event {
	return &Event{Type: typ, Attributes: map[string]string{}}
}

// Player returns the player the event concerns, or "" for game-wide events
// such as redemption or pause toggles.
func (e *Event) Player() string {
	if e == nil {
		return ""
	}
	return e.Attributes[AttrPlayer]
}

// Canonical renders the event deterministically: the type followed by each
// attribute in key order, NUL separated.
func (e *Event) Canonical() []byte {
	var buf strings.Builder
	buf.WriteString(e.Type)
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(0)
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(e.Attributes[k])
	}
	return []byte(buf.String())
}
