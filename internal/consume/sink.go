package consume

import "github.com/aleksandr-gorokhov/komprender/internal/decode"

const EventMessageReceived = "message_received"

// Sink receives decoded records. Emit errors are logged by the session and
// never end it.
type Sink interface {
	Emit(event string, rec decode.Record) error
}

type SinkFunc func(event string, rec decode.Record) error

func (f SinkFunc) Emit(event string, rec decode.Record) error { return f(event, rec) }
