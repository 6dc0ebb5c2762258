package history

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags which tool produced a history item.
type Kind string

const (
	KindScan  Kind = "scan"
	KindOCR   Kind = "ocr"
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// ParseKind validates a persisted or user supplied kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindScan, KindOCR, KindPDF, KindImage:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Item is one completed tool action. Items are never edited.
type Item struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Payload   string    `json:"data"`
	CreatedAt time.Time `json:"-"`
}

// itemRecord is the persisted shape: timestamp in Unix milliseconds.
type itemRecord struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"type"`
	Payload   string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func (i Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemRecord{
		ID:        i.ID,
		Kind:      i.Kind,
		Payload:   i.Payload,
		Timestamp: i.CreatedAt.UnixMilli(),
	})
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var r itemRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.ID == "" {
		return fmt.Errorf("%w: item without id", ErrMalformed)
	}
	kind, err := ParseKind(string(r.Kind))
	if err != nil {
		return err
	}
	*i = Item{
		ID:        r.ID,
		Kind:      kind,
		Payload:   r.Payload,
		CreatedAt: time.UnixMilli(r.Timestamp),
	}
	return nil
}
