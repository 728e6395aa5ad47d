package eventhub

import (
	"time"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// RegisterResponseListener arranges for listener, on the named extension's
// lane, to receive the first dispatched event whose response ID equals
// trigger's ID. If no such event is admitted within timeout the listener
// receives nil instead. Exactly one of the two happens.
//
// Register before dispatching the trigger, or a fast responder can be
// missed.
func (h *Hub) RegisterResponseListener(extension string, trigger *event.Event, timeout time.Duration, listener Listener) {
	c, ok := h.containers.Get(extension)
	if !ok {
		observability.LogUnknownExtension(h.logger, "register_response_listener", extension)
		return
	}
	if trigger == nil || listener == nil {
		return
	}
	if timeout <= 0 {
		timeout = h.cfg.responseTimeout
	}
	c.addResponse(trigger.ID(), timeout, listener)
}
