package dto

const (
	WSTypeAttendance = "attendance"
	WSTypeRegistered = "identity_registered"
)

// WSEvent is a WebSocket message for real-time attendance delivery.
type WSEvent struct {
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Event    *EventResponse    `json:"event,omitempty"`
	Identity *IdentityResponse `json:"identity,omitempty"`
}
