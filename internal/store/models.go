package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the canonical, immutable transaction record. The amount sign
// convention is fixed: negative means expense, positive means income. Category
// is empty until the categorizer assigns a label.
type Transaction struct {
	ID          string            `json:"id"`
	Date        time.Time         `json:"date"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
	Category    string            `json:"category,omitempty"`
	Confidence  float64           `json:"category_confidence"`
	Raw         map[string]string `json:"raw,omitempty"`
}

// Session groups one uploaded transaction batch and its question history.
type Session struct {
	ID        string    `json:"id"` // UUID
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn of the question/answer history for a session. Model
// messages carry the ids of the transactions the answer was grounded on.
type Message struct {
	ID        string    `json:"id"` // UUID
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"` // "user" or "model"
	Content   string    `json:"content"`
	CitedIDs  []string  `json:"cited_transaction_ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionRecord is the wire form supplied by the upstream data-cleaning
// collaborator. Fields are normalized into a Transaction by NormalizeRecord;
// malformed records are rejected, never repaired.
type TransactionRecord struct {
	ID          string            `json:"id"`
	Date        string            `json:"date"`
	Description string            `json:"description"`
	Amount      json.Number       `json:"amount"`
	Raw         map[string]string `json:"raw,omitempty"`
}

// ValidationError reports a malformed input record. It carries the transaction
// id (when known) so the caller can point at the offending row.
type ValidationError struct {
	TransactionID string
	Field         string
	Reason        string
}

func (e *ValidationError) Error() string {
	if e.TransactionID == "" {
		return fmt.Sprintf("invalid transaction: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid transaction %s: %s: %s", e.TransactionID, e.Field, e.Reason)
}

// dateFormats are the accepted normalized date layouts, tried in order.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
}

// NormalizeRecord validates a wire record and converts it into a Transaction.
func NormalizeRecord(rec TransactionRecord) (Transaction, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return Transaction{}, &ValidationError{Field: "id", Reason: "missing"}
	}
	if strings.TrimSpace(rec.Date) == "" {
		return Transaction{}, &ValidationError{TransactionID: rec.ID, Field: "date", Reason: "missing"}
	}
	if strings.TrimSpace(rec.Description) == "" {
		return Transaction{}, &ValidationError{TransactionID: rec.ID, Field: "description", Reason: "missing"}
	}
	if rec.Amount.String() == "" {
		return Transaction{}, &ValidationError{TransactionID: rec.ID, Field: "amount", Reason: "missing"}
	}

	date, err := parseDate(rec.Date)
	if err != nil {
		return Transaction{}, &ValidationError{TransactionID: rec.ID, Field: "date", Reason: err.Error()}
	}

	amount, err := decimal.NewFromString(rec.Amount.String())
	if err != nil {
		return Transaction{}, &ValidationError{TransactionID: rec.ID, Field: "amount", Reason: "not a decimal number"}
	}

	return Transaction{
		ID:          strings.TrimSpace(rec.ID),
		Date:        date,
		Description: strings.TrimSpace(rec.Description),
		Amount:      amount,
		Raw:         rec.Raw,
	}, nil
}

func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", value)
}
