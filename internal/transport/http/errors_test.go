package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidParticipants, http.StatusBadRequest},
		{fmt.Errorf("%w: bad json", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrNotParticipant, http.StatusForbidden},
		{fmt.Errorf("rooms.Get: %w", domain.ErrRoomNotFound), http.StatusNotFound},
		{domain.ErrUserExists, http.StatusConflict},
		{errors.New("dial tcp: refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}
