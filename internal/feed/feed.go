// Package feed subscribes to a chain node's operation and event streams
// over WebSocket.
//
// The subscription always starts from the current chain head: gaps during
// downtime are not replayed here, downstream aggregation reconciles them.
// Delivery is at-least-once.
package feed

// Slot identifies a block production slot.
type Slot struct {
	Period uint64 `json:"period"`
	Thread uint8  `json:"thread"`
}

const (
	periodMs     = 16_000 // one period spans all threads
	threadPairMs = 1_000  // threads advance in pairs, one second apart
)

// SlotTimestamp maps a slot to its wall-clock Unix millisecond timestamp.
func SlotTimestamp(genesisMs int64, s Slot) int64 {
	return genesisMs + int64(s.Period)*periodMs + int64(s.Thread/2)*threadPairMs
}

// Operation is one signed contract call delivered by the operation feed.
type Operation struct {
	TxID          string
	Caller        string
	TargetAddress string // contract the call is addressed to
	Method        string
	Args          []byte // serialized argument buffer
	Final         bool   // finality status at delivery time
	Slot          Slot
}

// Event is one contract-emitted event delivered by the event feed.
// CallStack lists the call chain outermost-first; the last entry is the
// direct emitter.
type Event struct {
	OriginTxID string
	Index      int // position within the operation's event batch
	CallStack  []string
	Data       string
	Slot       Slot
}
