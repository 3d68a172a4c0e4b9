package webhook

import (
	"strings"
)

type EventType string

const (
	EventTypeUserRegistered EventType = "user.registered"
	EventTypeUserCreated    EventType = "user.created"
)

// UserRegisteredEvent is the payload the identity provider posts when a user signs up.
// Only event.user.email is required; everything else is informational.
type UserRegisteredEvent struct {
	Type  EventType `json:"type,omitempty"`
	Event *Event    `json:"event" validate:"required"`
}

type Event struct {
	User *User `json:"user" validate:"required"`
}

type User struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email" validate:"notblank"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName is "First Last" when the provider sent a name, else the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}
