package content

import "encoding/json"

// Lesson is a lesson document. Fields not modelled here are kept and
// served back verbatim.
type Lesson struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
	Title string `json:"title"`

	raw json.RawMessage
}

func (l *Lesson) UnmarshalJSON(data []byte) error {
	type fields Lesson
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*l = Lesson(f)
	l.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (l Lesson) MarshalJSON() ([]byte, error) {
	if l.raw != nil {
		return l.raw, nil
	}
	type fields Lesson
	return json.Marshal(fields(l))
}

// Challenge is a skill challenge document.
type Challenge struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	XP           int    `json:"xp"`
	Tier         string `json:"tier"`
	TimeEstimate any    `json:"timeEstimate,omitempty"`

	raw json.RawMessage
}

const (
	TierFoundation   = "foundation"
	TierIntermediate = "intermediate"
	TierAdvanced     = "advanced"
)

// Tiers lists the challenge tiers in display order.
var Tiers = []string{TierFoundation, TierIntermediate, TierAdvanced}

func (c *Challenge) UnmarshalJSON(data []byte) error {
	type fields Challenge
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = Challenge(f)
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (c Challenge) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	type fields Challenge
	return json.Marshal(fields(c))
}

// WithCompleted returns the challenge document with a "completed" field added.
func (c Challenge) WithCompleted(done bool) (json.RawMessage, error) {
	doc, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, err
	}
	m["completed"] = json.RawMessage("false")
	if done {
		m["completed"] = json.RawMessage("true")
	}
	return json.Marshal(m)
}
