package relay

import "errors"

var (
	// ErrThreadCreationFailed is returned when the platform refuses to open a thread.
	ErrThreadCreationFailed = errors.New("thread creation failed")
	// ErrDeliveryBlocked means the recipient has blocked the bot.
	ErrDeliveryBlocked = errors.New("delivery blocked by recipient")
	// ErrDeliveryFailed covers every other send or copy failure.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrPersistenceUnavailable wraps load and save failures of the state store.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrBindingNotFound means no user is bound to the given thread (or the reverse).
	ErrBindingNotFound = errors.New("binding not found")
)
