package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// MaxThreadTitleLen is Telegram's limit on forum topic names. Telegram
// counts it in UTF-16 code units.
const MaxThreadTitleLen = 128

const defaultTitleName = "User"

// ThreadCreator opens a platform thread with the given title.
type ThreadCreator func(ctx context.Context, title string) (int64, error)

// ThreadDiscarder disposes of a thread that was created but not bound.
type ThreadDiscarder func(ctx context.Context, threadID int64)

// Directory is the bijection between users and staff threads. Both maps
// are only ever changed together by bind and Remove.
type Directory struct {
	byUser   map[int64]int64
	byThread map[int64]int64
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		byUser:   make(map[int64]int64),
		byThread: make(map[int64]int64),
	}
}

// ThreadFor returns the thread bound to userID.
func (d *Directory) ThreadFor(userID int64) (int64, bool) {
	threadID, ok := d.byUser[userID]
	return threadID, ok
}

// UserFor returns the user bound to threadID.
func (d *Directory) UserFor(threadID int64) (int64, bool) {
	userID, ok := d.byThread[threadID]
	return userID, ok
}

// Len returns the number of bindings.
func (d *Directory) Len() int {
	return len(d.byUser)
}

// Users returns the bound user ids in no particular order.
func (d *Directory) Users() []int64 {
	users := make([]int64, 0, len(d.byUser))
	for userID := range d.byUser {
		users = append(users, userID)
	}
	return users
}

// ResolveOrCreate returns the thread bound to userID, creating and binding
// a new one when none exists. created reports whether a thread was opened.
// Nothing is bound when creation fails; a thread that was created but
// cannot be bound is passed to discard, which may be nil.
func (d *Directory) ResolveOrCreate(ctx context.Context, userID int64, nameHint string, create ThreadCreator, discard ThreadDiscarder) (threadID int64, created bool, err error) {
	if threadID, ok := d.byUser[userID]; ok {
		return threadID, false, nil
	}

	threadID, err = create(ctx, ThreadTitle(nameHint, userID))
	if err != nil {
		return 0, false, fmt.Errorf("%w: user %d: %v", ErrThreadCreationFailed, userID, err)
	}
	if err := d.bind(userID, threadID); err != nil {
		if discard != nil {
			discard(ctx, threadID)
		}
		return 0, false, fmt.Errorf("%w: %v", ErrThreadCreationFailed, err)
	}
	return threadID, true, nil
}

// Remove deletes the binding of userID in both directions and returns the
// thread it pointed at. Removing an unknown user is a no-op.
func (d *Directory) Remove(userID int64) (int64, bool) {
	threadID, ok := d.byUser[userID]
	if !ok {
		return 0, false
	}
	delete(d.byUser, userID)
	delete(d.byThread, threadID)
	return threadID, true
}

func (d *Directory) bind(userID, threadID int64) error {
	if existing, ok := d.byUser[userID]; ok && existing != threadID {
		return fmt.Errorf("user %d already bound to thread %d", userID, existing)
	}
	if owner, ok := d.byThread[threadID]; ok && owner != userID {
		return fmt.Errorf("thread %d already bound to user %d", threadID, owner)
	}
	d.byUser[userID] = threadID
	d.byThread[threadID] = userID
	return nil
}

// ThreadTitle builds the thread name for a user: the display name,
// shortened to fit MaxThreadTitleLen, followed by the user id.
func ThreadTitle(name string, userID int64) string {
	if name == "" {
		name = defaultTitleName
	}
	suffix := " • " + strconv.FormatInt(userID, 10)
	budget := MaxThreadTitleLen - UTF16Len(suffix)
	if UTF16Len(name) <= budget {
		return name + suffix
	}

	budget-- // room for the ellipsis
	var b strings.Builder
	for _, r := range name {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1 // invalid runes are sent as U+FFFD
		}
		if n > budget {
			break
		}
		budget -= n
		b.WriteRune(r)
	}
	return b.String() + "…" + suffix
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
