package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind tells which variant of an Entry is active.
type Kind uint8

const (
	KindPriced Kind = iota + 1
	KindErrored
)

// Entry is one cached outcome for a symbol: a price or an error reason,
// stamped with the time it was written.
type Entry struct {
	Kind       Kind
	Price      float64
	Reason     string
	ObservedAt time.Time
}

func PricedEntry(price float64, at time.Time) Entry {
	return Entry{Kind: KindPriced, Price: price, ObservedAt: at}
}

func ErroredEntry(reason string, at time.Time) Entry {
	return Entry{Kind: KindErrored, Reason: reason, ObservedAt: at}
}

func (e Entry) IsPriced() bool  { return e.Kind == KindPriced }
func (e Entry) IsErrored() bool { return e.Kind == KindErrored }

// wireEntry is the on-disk shape:
// {"price": 150.0, "timestamp": "..."} or {"error": "...", "timestamp": "..."}.
type wireEntry struct {
	Price     *float64 `json:"price,omitempty"`
	Error     *string  `json:"error,omitempty"`
	Timestamp string   `json:"timestamp"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{Timestamp: e.ObservedAt.Format(time.RFC3339Nano)}
	switch e.Kind {
	case KindPriced:
		p := e.Price
		w.Price = &p
	case KindErrored:
		r := e.Reason
		w.Error = &r
	default:
		return nil, fmt.Errorf("marshal entry: unknown kind %d", e.Kind)
	}
	return json.Marshal(w)
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var w wireEntry
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	at, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return err
	}
	// the error key wins when both are present
	switch {
	case w.Error != nil:
		*e = ErroredEntry(*w.Error, at)
	case w.Price != nil:
		*e = PricedEntry(*w.Price, at)
	default:
		return errors.New("entry has neither price nor error")
	}
	return nil
}

// naiveLayouts are ISO-8601 forms without a zone offset, read as local time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
