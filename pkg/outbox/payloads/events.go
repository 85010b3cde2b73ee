package payloads

import "time"

// ProcessorEventPrefix namespaces processor events inside the platform taxonomy.
const ProcessorEventPrefix = "mangopay_"

// ProcessorEmitterID identifies the gateway as the emitter of recorded events.
const ProcessorEmitterID = "mangopay"

// ProcessorEvent is the envelope extracted from one Mangopay notification delivery.
type ProcessorEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ResourceID  string    `json:"resourceId"`
	Timestamp   int64     `json:"timestamp"`
	PlatformID  string    `json:"platformId"`
	PlatformEnv string    `json:"platformEnv"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// PlatformEvent is the body posted to the platform events API.
type PlatformEvent struct {
	Type      string         `json:"type"`
	ObjectID  string         `json:"objectId"`
	EmitterID string         `json:"emitterId"`
	Metadata  map[string]any `json:"metadata"`
}

// ToPlatformEvent maps the delivery envelope onto the platform event contract.
func (e ProcessorEvent) ToPlatformEvent() PlatformEvent {
	return PlatformEvent{
		Type:      e.Type,
		ObjectID:  e.ResourceID,
		EmitterID: ProcessorEmitterID,
		Metadata: map[string]any{
			"id":         e.ID,
			"type":       e.Type,
			"resourceId": e.ResourceID,
			"timestamp":  e.Timestamp,
		},
	}
}
