package amqp

import (
	"encoding/json"
	"time"

	"personal-analytics/internal/etl"
)

// ETLCompletedMessage announces that a load changed (or tried to change) the
// curated layer. Consumers re-read what they need from the store.
type ETLCompletedMessage struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Files      int       `json:"files"`
	Failed     int       `json:"failed"`
	Loaded     int       `json:"loaded"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finished_at"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewETLCompletedMessage(c etl.Completion) *ETLCompletedMessage {
	return &ETLCompletedMessage{
		RunID:      c.RunID,
		Mode:       c.Mode,
		Files:      c.Files,
		Failed:     c.Failed,
		Loaded:     c.Loaded,
		Skipped:    c.Skipped,
		FinishedAt: c.FinishedAt,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ETLCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ETLCompletedMessageFromJSON(data []byte) (*ETLCompletedMessage, error) {
	var msg ETLCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
