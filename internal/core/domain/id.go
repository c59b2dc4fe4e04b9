package domain

import (
	"github.com/google/uuid"
)

// UserID comes from the auth collaborator and is treated as opaque.
type UserID string

type CallID string

func NewCallID() CallID {
	return CallID(uuid.New().String())
}

func (id UserID) String() string {
	return string(id)
}

func (id CallID) String() string {
	return string(id)
}
