package amqp

import (
	"encoding/json"
	"time"
)

// ExportMessage asks the worker to copy one transaction to the spreadsheet.
// It only carries ids; the worker reads the row from the store.
type ExportMessage struct {
	TransactionID int64     `json:"transaction_id"`
	UserID        int64     `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewExportMessage(transactionID, userID int64) *ExportMessage {
	return &ExportMessage{
		TransactionID: transactionID,
		UserID:        userID,
		Timestamp:     time.Now().UTC(),
	}
}

func (m *ExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExportMessageFromJSON(data []byte) (*ExportMessage, error) {
	var msg ExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
