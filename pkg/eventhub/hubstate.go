package eventhub

import (
	"log/slog"
)

// HubExtensionName is the reserved name of the extension that publishes the
// hub's own shared state.
const HubExtensionName = "eventhub"

// Version is the hub version reported in its shared state.
const Version = "1.0.0"

type hubExtension struct {
	BaseExtension
}

func newHubExtension() Factory {
	return func(Runtime) (Extension, error) {
		return hubExtension{}, nil
	}
}

func (hubExtension) Name() string         { return HubExtensionName }
func (hubExtension) Version() string      { return Version }
func (hubExtension) FriendlyName() string { return "EventHub" }

// publishHubState writes the registered extensions into the hub
// extension's shared state:
//
//	{"version": "1.0.0", "extensions": {"name": {"version": ..., "friendlyName": ..., "metadata": {...}}}}
func (h *Hub) publishHubState() {
	h.hubStateMu.Lock()
	defer h.hubStateMu.Unlock()

	extensions := make(map[string]any)
	for _, c := range h.containers.Values() {
		if c.name == HubExtensionName {
			continue
		}
		entry := map[string]any{
			"version":      c.ext.Version(),
			"friendlyName": c.name,
		}
		if fn, ok := c.ext.(FriendlyNamer); ok && fn.FriendlyName() != "" {
			entry["friendlyName"] = fn.FriendlyName()
		}
		if mp, ok := c.ext.(MetadataProvider); ok {
			if md := mp.Metadata(); len(md) > 0 {
				meta := make(map[string]any, len(md))
				for k, v := range md {
					meta[k] = v
				}
				entry["metadata"] = meta
			}
		}
		extensions[c.name] = entry
	}

	data := map[string]any{
		"version":    Version,
		"extensions": extensions,
	}
	if err := h.CreateSharedState(HubExtensionName, data, nil); err != nil {
		h.logger.Warn("hub shared state not published", slog.String("error", err.Error()))
	}
}
