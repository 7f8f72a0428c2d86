package conversation

import (
	"time"

	"github.com/requestline/intake-bot/internal/catalog"
	"github.com/requestline/intake-bot/internal/fsm"
)

// Session is the durable per-user conversation record. At most one live
// session exists per sender hash; the raw sender identity never reaches
// storage.
type Session struct {
	ID         string    `json:"id"`
	SenderHash string    `json:"senderHash"`
	State      fsm.State `json:"state"`

	MediaKind  catalog.MediaKind   `json:"mediaKind,omitempty"`
	Query      string              `json:"query,omitempty"`
	Candidates []catalog.Candidate `json:"candidates,omitempty"`

	SelectedIndex     int                `json:"selectedIndex,omitempty"`
	Selected          *catalog.Candidate `json:"selected,omitempty"`
	AvailableSubunits []catalog.Subunit  `json:"availableSubunits,omitempty"`
	SelectedSubunits  []int              `json:"selectedSubunits,omitempty"`
	AllSubunits       bool               `json:"allSubunits,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the sliding TTL has passed. Lookups must treat an
// expired session as absent even before the sweeper deletes it.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Reset clears every search and selection field and returns the session to
// the idle state. The record itself stays alive until its TTL passes.
func (s *Session) Reset() {
	s.State = fsm.StateIdle
	s.MediaKind = ""
	s.Query = ""
	s.Candidates = nil
	s.SelectedIndex = 0
	s.Selected = nil
	s.AvailableSubunits = nil
	s.SelectedSubunits = nil
	s.AllSubunits = false
}

// Touch extends the sliding TTL from now.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}
