package http

import (
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type SignupRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	FullName string `json:"fullName" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

type UserItem struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// CreateRoomRequest is validated by the room service itself so that a
// short participant list maps to the dedicated error.
type CreateRoomRequest struct {
	Participants []string `json:"participants" validate:"max=256,dive,max=64"`
	CreatedBy    string   `json:"createdBy" validate:"max=64"`
	Name         string   `json:"name" validate:"max=128"`
}
