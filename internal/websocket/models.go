package websocket

// Message is the envelope for every message pushed over the live feed
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewTelemetryMessage wraps a telemetry sample in the live feed envelope
func NewTelemetryMessage(sample interface{}) *Message {
	return &Message{Type: "telemetry", Data: sample}
}
