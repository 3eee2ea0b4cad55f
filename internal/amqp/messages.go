package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ChangeEvent announces that an owner's expense records changed. It carries
// no record data; receivers re-read the owner's set from the store.
type ChangeEvent struct {
	OwnerID   string    `json:"uid"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeEvent(ownerID, source string) *ChangeEvent {
	return &ChangeEvent{
		OwnerID:   ownerID,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

func (e *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangeEventFromJSON decodes an event and rejects one without an owner.
func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.OwnerID == "" {
		return nil, errors.New("change event without uid")
	}
	return &e, nil
}
