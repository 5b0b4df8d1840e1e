package domain

import (
	"encoding/json"
	"fmt"
)

// Collection is the full set of tracked announcements in insertion order,
// indexed by id. Announcements can be added but never removed.
type Collection struct {
	items []*Announcement
	byID  map[string]*Announcement
}

// NewCollection builds a collection from the given announcements.
func NewCollection(items ...*Announcement) (*Collection, error) {
	c := &Collection{byID: make(map[string]*Announcement, len(items))}
	for _, a := range items {
		if err := c.Add(a); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends a new announcement.
func (c *Collection) Add(a *Announcement) error {
	if c.byID == nil {
		c.byID = make(map[string]*Announcement)
	}
	if _, ok := c.byID[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}
	c.items = append(c.items, a)
	c.byID[a.ID] = a
	return nil
}

// Get looks up an announcement by id.
func (c *Collection) Get(id string) (*Announcement, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Len returns the number of announcements.
func (c *Collection) Len() int { return len(c.items) }

// All returns the announcements in insertion order. The slice is a copy; the
// announcements are shared.
func (c *Collection) All() []*Announcement {
	out := make([]*Announcement, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	var items []*Announcement
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	decoded, err := NewCollection(items...)
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}
