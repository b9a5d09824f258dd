package amqp

import (
	"encoding/json"
	"time"
)

// RefreshRequestMessage asks the worker to re-ingest every source table and
// rewrite the snapshot. It carries no payload beyond provenance; the worker
// always performs a full refresh.
type RefreshRequestMessage struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewRefreshRequestMessage(reason, requestedBy string) *RefreshRequestMessage {
	return &RefreshRequestMessage{
		Reason:      reason,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestMessageFromJSON creates a message from JSON bytes
func RefreshRequestMessageFromJSON(data []byte) (*RefreshRequestMessage, error) {
	var msg RefreshRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
