package domain

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// ReviewCard is a single learnable flashcard together with its SM-2 scheduling state.
// The JSON field names match the persisted quiz-state layout.
type ReviewCard struct {
	ID           string     `json:"id"`
	Front        string     `json:"front"`
	Back         string     `json:"back"`
	Context      string     `json:"context,omitempty"`
	Repetitions  int        `json:"repetitions"`
	Interval     int        `json:"interval"` // days
	EaseFactor   float64    `json:"easeFactor"`
	NextReview   Schedule   `json:"nextReview,omitzero"`
	LastReviewed *time.Time `json:"lastReviewed,omitempty"`
	Created      time.Time  `json:"created"`
	SourceID     int64      `json:"sourceId,omitempty"` // deck source the card was imported from

	// Extra holds JSON fields this type does not model. They are written
	// back unchanged after the known fields.
	Extra map[string]json.RawMessage `json:"-"`
}

// cardKeys are the JSON keys owned by ReviewCard's own fields.
var cardKeys = []string{
	"id", "front", "back", "context", "repetitions", "interval", "easeFactor",
	"nextReview", "lastReviewed", "created", "sourceId",
}

func (c *ReviewCard) UnmarshalJSON(data []byte) error {
	type fields ReviewCard
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range cardKeys {
		delete(all, k)
	}

	*c = ReviewCard(f)
	c.Extra = nil
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

func (c ReviewCard) MarshalJSON() ([]byte, error) {
	type fields ReviewCard
	data, err := json.Marshal(fields(c))
	if err != nil || len(c.Extra) == 0 {
		return data, err
	}

	buf := bytes.NewBuffer(bytes.TrimSuffix(data, []byte("}")))
	for _, k := range slices.Sorted(maps.Keys(c.Extra)) {
		if slices.Contains(cardKeys, k) {
			continue
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(c.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Reviewed reports whether the card has been reviewed at least once.
func (c ReviewCard) Reviewed() bool {
	return c.LastReviewed != nil
}

// ReviewLog records a single review event for a card.
// Quality follows the SM-2 scale:
// 0-2: lapse (not recalled)
// 3: recalled with serious difficulty
// 4: recalled after hesitation
// 5: perfect recall
type ReviewLog struct {
	CardID     string    `json:"cardId"`
	ReviewedAt time.Time `json:"reviewedAt"`
	Quality    int       `json:"quality"`
	Interval   int       `json:"interval"`
	EaseFactor float64   `json:"easeFactor"`
}

// Source is an origin of markdown decks, either a local path or a Git URL.
type Source struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"` // "local" or "git"
	LastScanned *time.Time `json:"lastScanned,omitempty"`
}

const (
	SourceLocal = "local"
	SourceGit   = "git"
)
