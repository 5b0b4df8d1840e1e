package domain

import (
	"encoding/json"
	"fmt"
)

// History is the append-only, chronologically ordered list of version records
// of one announcement. The zero value is an empty history. There is no way to
// remove or replace a record once appended.
type History struct {
	records []VersionRecord
}

// Append adds rec after the latest record. The record's ScrapedAt must be
// strictly after the latest record's.
func (h *History) Append(rec VersionRecord) error {
	if n := len(h.records); n > 0 && !rec.ScrapedAt.After(h.records[n-1].ScrapedAt) {
		return fmt.Errorf("%w: %s does not follow %s", ErrOutOfOrder,
			rec.ScrapedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			h.records[n-1].ScrapedAt.Format("2006-01-02T15:04:05.000Z07:00"))
	}
	h.records = append(h.records, rec)
	return nil
}

// Len returns the number of records.
func (h *History) Len() int { return len(h.records) }

// At returns the i-th record, oldest first.
func (h *History) At(i int) VersionRecord { return h.records[i] }

// Latest returns the newest record, or false when the history is empty.
func (h *History) Latest() (VersionRecord, bool) {
	if len(h.records) == 0 {
		return VersionRecord{}, false
	}
	return h.records[len(h.records)-1], true
}

// All returns a copy of the records, oldest first.
func (h *History) All() []VersionRecord {
	out := make([]VersionRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h History) MarshalJSON() ([]byte, error) {
	if h.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.records)
}

// UnmarshalJSON decodes a JSON list and re-validates chronological order, so a
// hand-edited document with reordered records is rejected rather than loaded.
func (h *History) UnmarshalJSON(data []byte) error {
	var recs []VersionRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return err
	}
	var decoded History
	for i, rec := range recs {
		if err := decoded.Append(rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	*h = decoded
	return nil
}
