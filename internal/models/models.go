package models

import (
	"sort"
	"strings"
	"time"
)

// User is the platform identity of someone writing to the bot.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// FullName joins first and last name the way Telegram clients display them.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Binding ties one end user to one staff thread.
type Binding struct {
	UserID       int64     `json:"user_id"`
	ThreadID     int64     `json:"thread_id"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Snapshot is the durable form of the relay state. The thread to user
// direction is derived from Bindings on restore.
type Snapshot struct {
	Bindings []Binding `json:"bindings"`
	Banned   []int64   `json:"banned"`
	SavedAt  time.Time `json:"saved_at"`
}

// IsEmpty reports whether the snapshot carries no state.
func (s Snapshot) IsEmpty() bool {
	return len(s.Bindings) == 0 && len(s.Banned) == 0
}

// Normalize sorts bindings and bans so equal states compare equal.
func (s *Snapshot) Normalize() {
	sort.Slice(s.Bindings, func(i, j int) bool {
		return s.Bindings[i].UserID < s.Bindings[j].UserID
	})
	sort.Slice(s.Banned, func(i, j int) bool {
		return s.Banned[i] < s.Banned[j]
	})
	for i := range s.Bindings {
		s.Bindings[i].LastActiveAt = s.Bindings[i].LastActiveAt.UTC()
	}
	s.SavedAt = s.SavedAt.UTC()
}
