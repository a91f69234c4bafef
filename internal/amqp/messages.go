package amqp

import (
	"encoding/json"
	"time"
)

// Operations carried by a ChangeNotice.
const (
	OpUpsert = "upsert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeNotice tells devices that the remote ledger accepted a write.
// It carries no record data; receivers run a normal sync pass.
type ChangeNotice struct {
	ID        string    `json:"id"`
	Month     string    `json:"month,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeNotice(op, id, month, deviceID string) ChangeNotice {
	return ChangeNotice{
		ID:        id,
		Month:     month,
		DeviceID:  deviceID,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

func (m ChangeNotice) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeNoticeFromJSON(data []byte) (ChangeNotice, error) {
	var msg ChangeNotice
	if err := json.Unmarshal(data, &msg); err != nil {
		return ChangeNotice{}, err
	}
	return msg, nil
}
