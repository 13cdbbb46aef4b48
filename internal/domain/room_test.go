package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeParticipants(t *testing.T) {
	got, err := NormalizeParticipants([]string{" lee", "kim", "park", "kim", ""})
	require.NoError(t, err)
	require.Equal(t, []string{"kim", "lee", "park"}, got)

	_, err = NormalizeParticipants([]string{"kim", "kim", " kim "})
	require.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = NormalizeParticipants(nil)
	require.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestParticipantsKey_OrderIndependent(t *testing.T) {
	a, err := NormalizeParticipants([]string{"c", "a", "b"})
	require.NoError(t, err)
	b, err := NormalizeParticipants([]string{"b", "c", "a"})
	require.NoError(t, err)
	require.Equal(t, ParticipantsKey(a), ParticipantsKey(b))

	pair, err := NormalizeParticipants([]string{"ab", "c"})
	require.NoError(t, err)
	other, err := NormalizeParticipants([]string{"a", "bc"})
	require.NoError(t, err)
	require.NotEqual(t, ParticipantsKey(pair), ParticipantsKey(other))
}

func TestNewChatRoom_GroupFlag(t *testing.T) {
	now := time.Now()
	for _, tc := range []struct {
		participants []string
		group        bool
	}{
		{[]string{"a", "b"}, false},
		{[]string{"a", "b", "c"}, true},
		{[]string{"a", "b", "c", "d"}, true},
	} {
		room := NewChatRoom("id", tc.participants, "a", "", now)
		require.Equal(t, tc.group, room.IsGroup, tc.participants)
	}
}

func TestChatRoom_Participants(t *testing.T) {
	room := NewChatRoom("id", []string{"kim", "lee", "park"}, "kim", "team", time.Now())
	require.True(t, room.HasParticipant("lee"))
	require.False(t, room.HasParticipant("choi"))
	require.Equal(t, []string{"kim", "park"}, room.Others("lee"))
}
