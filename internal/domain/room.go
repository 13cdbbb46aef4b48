package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// participantsKeySep cannot appear in a trimmed username.
const participantsKeySep = "\x1f"

type ChatRoom struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	Participants    []string  `json:"participants"`
	ParticipantsKey string    `json:"-"`
	IsGroup         bool      `json:"isGroup"`
	CreatedBy       string    `json:"createdBy"`
	LastSeq         int64     `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NormalizeParticipants trims, drops empty entries, de-duplicates and sorts.
// It fails with ErrInvalidParticipants when fewer than two identities remain.
func NormalizeParticipants(in []string) ([]string, error) {
	out := lo.Uniq(lo.FilterMap(in, func(u string, _ int) (string, bool) {
		u = strings.TrimSpace(u)
		return u, u != ""
	}))
	if len(out) < 2 {
		return nil, ErrInvalidParticipants
	}
	slices.Sort(out)
	return out, nil
}

// ParticipantsKey is the storage identity of a normalized participant set.
func ParticipantsKey(normalized []string) string {
	return strings.Join(normalized, participantsKeySep)
}

// NewChatRoom builds an unsaved room for an already normalized participant set.
func NewChatRoom(id string, normalized []string, createdBy, name string, now time.Time) *ChatRoom {
	return &ChatRoom{
		ID:              id,
		Name:            strings.TrimSpace(name),
		Participants:    normalized,
		ParticipantsKey: ParticipantsKey(normalized),
		IsGroup:         len(normalized) > 2,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *ChatRoom) HasParticipant(username string) bool {
	_, ok := slices.BinarySearch(r.Participants, username)
	if ok {
		return true
	}
	// rooms read from legacy rows may not be sorted
	return slices.Contains(r.Participants, username)
}

// Others returns the participants except username, in canonical order.
func (r *ChatRoom) Others(username string) []string {
	return lo.Without(r.Participants, username)
}
