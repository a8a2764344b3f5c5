// Package events defines the typed event sink the network emits to. A
// closed Kind enum replaces loose string channels so consumers cannot
// subscribe to a misspelled name.
package events

// Kind enumerates every event the network can emit.
type Kind string

const (
	PeerConnected        Kind = "peer:connected"
	PeerUpdated          Kind = "peer:updated"
	PeerDisconnect       Kind = "peer:disconnect"
	TransactionNew       Kind = "transaction:new"
	TransactionInvalid   Kind = "transaction:invalid"
	TransactionConfirmed Kind = "transaction:confirmed"
	TransactionFailed    Kind = "transaction:failed"
	NetworkStats         Kind = "network:stats"
	NetworkInitialized   Kind = "network:initialized"
	NetworkShutdown      Kind = "network:shutdown"
)

// Event is the payload delivered to a Sink. Fields are a superset across
// all Kinds; a given Kind only populates the fields relevant to it.
type Event struct {
	Kind      Kind
	TxID      string
	PeerID    string
	Reason    string
	Witnesses []int
	Data      map[string]any
}

// Sink receives emitted events. Wiring a Sink to a user-visible channel
// (log line, websocket frame, message bus) is up to the caller; this
// package only defines the contract.
type Sink interface {
	Emit(Event)
}

// Func adapts a plain function to the Sink interface.
type Func func(Event)

// Emit implements Sink.
func (f Func) Emit(e Event) { f(e) }

// Recorder is a Sink that accumulates every event it receives,
// primarily for tests that assert on emitted events.
type Recorder struct {
	Events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements Sink.
func (r *Recorder) Emit(e Event) { r.Events = append(r.Events, e) }

// Last returns the most recently recorded event of the given kind, and
// whether one was found.
func (r *Recorder) Last(kind Kind) (Event, bool) {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Kind == kind {
			return r.Events[i], true
		}
	}
	return Event{}, false
}

// CountOf returns how many events of the given kind were recorded.
func (r *Recorder) CountOf(kind Kind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
