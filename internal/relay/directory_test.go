package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func counterCreator(start int64) (ThreadCreator, *int) {
	calls := 0
	next := start
	return func(ctx context.Context, title string) (int64, error) {
		calls++
		next++
		return next, nil
	}, &calls
}

func TestDirectory_ResolveOrCreateIsIdempotent(t *testing.T) {
	d := NewDirectory()
	create, calls := counterCreator(10)

	first, created, err := d.ResolveOrCreate(context.Background(), 1, "Alice", create, nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if !created {
		t.Error("first call should report created")
	}
	for i := 0; i < 3; i++ {
		again, created, err := d.ResolveOrCreate(context.Background(), 1, "Alice", create, nil)
		if err != nil {
			t.Fatalf("ResolveOrCreate: %v", err)
		}
		if created {
			t.Error("repeat call should not create")
		}
		if again != first {
			t.Errorf("thread = %d, want %d", again, first)
		}
	}
	if *calls != 1 {
		t.Errorf("create called %d times, want 1", *calls)
	}
}

func TestDirectory_Bijection(t *testing.T) {
	d := NewDirectory()
	create, _ := counterCreator(0)

	seen := make(map[int64]int64)
	for userID := int64(1); userID <= 20; userID++ {
		threadID, _, err := d.ResolveOrCreate(context.Background(), userID, "u", create, nil)
		if err != nil {
			t.Fatalf("ResolveOrCreate(%d): %v", userID, err)
		}
		if owner, dup := seen[threadID]; dup {
			t.Fatalf("thread %d shared by users %d and %d", threadID, owner, userID)
		}
		seen[threadID] = userID
	}
	for threadID, userID := range seen {
		got, ok := d.UserFor(threadID)
		if !ok || got != userID {
			t.Errorf("UserFor(%d) = %d, %v; want %d", threadID, got, ok, userID)
		}
		back, ok := d.ThreadFor(userID)
		if !ok || back != threadID {
			t.Errorf("ThreadFor(%d) = %d, %v; want %d", userID, back, ok, threadID)
		}
	}
}

func TestDirectory_CreationFailureBindsNothing(t *testing.T) {
	d := NewDirectory()
	failing := func(ctx context.Context, title string) (int64, error) {
		return 0, errBoom
	}

	_, _, err := d.ResolveOrCreate(context.Background(), 7, "Bob", failing, nil)
	if !errors.Is(err, ErrThreadCreationFailed) {
		t.Fatalf("err = %v, want ErrThreadCreationFailed", err)
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, want 0", d.Len())
	}
}

func TestDirectory_ReusedThreadIDRejected(t *testing.T) {
	d := NewDirectory()
	same := func(ctx context.Context, title string) (int64, error) { return 55, nil }

	if _, _, err := d.ResolveOrCreate(context.Background(), 1, "a", same, nil); err != nil {
		t.Fatalf("first ResolveOrCreate: %v", err)
	}
	_, _, err := d.ResolveOrCreate(context.Background(), 2, "b", same, nil)
	if !errors.Is(err, ErrThreadCreationFailed) {
		t.Fatalf("err = %v, want ErrThreadCreationFailed", err)
	}
	if owner, _ := d.UserFor(55); owner != 1 {
		t.Errorf("thread 55 owner = %d, want 1", owner)
	}
	if _, ok := d.ThreadFor(2); ok {
		t.Error("user 2 should not be bound")
	}
}

func TestDirectory_UnboundThreadIsDiscarded(t *testing.T) {
	d := NewDirectory()
	same := func(ctx context.Context, title string) (int64, error) { return 55, nil }
	var discarded []int64
	discard := func(ctx context.Context, threadID int64) {
		discarded = append(discarded, threadID)
	}

	if _, _, err := d.ResolveOrCreate(context.Background(), 1, "a", same, discard); err != nil {
		t.Fatalf("first ResolveOrCreate: %v", err)
	}
	if len(discarded) != 0 {
		t.Fatalf("discarded = %v after a successful bind", discarded)
	}
	if _, _, err := d.ResolveOrCreate(context.Background(), 2, "b", same, discard); !errors.Is(err, ErrThreadCreationFailed) {
		t.Fatalf("err = %v, want ErrThreadCreationFailed", err)
	}
	if len(discarded) != 1 || discarded[0] != 55 {
		t.Errorf("discarded = %v, want [55]", discarded)
	}
}

func TestDirectory_RemoveBothDirections(t *testing.T) {
	d := NewDirectory()
	create, _ := counterCreator(40)
	threadID, _, _ := d.ResolveOrCreate(context.Background(), 3, "c", create, nil)

	got, ok := d.Remove(3)
	if !ok || got != threadID {
		t.Fatalf("Remove = %d, %v; want %d, true", got, ok, threadID)
	}
	if _, ok := d.ThreadFor(3); ok {
		t.Error("forward mapping still present")
	}
	if _, ok := d.UserFor(threadID); ok {
		t.Error("reverse mapping still present")
	}
	if _, ok := d.Remove(3); ok {
		t.Error("second Remove should be a no-op")
	}
}

func TestThreadTitle(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		userID int64
		want   string
	}{
		{"plain", "Alice", 1, "Alice • 1"},
		{"empty name", "", 42, "User • 42"},
		{"cyrillic", "Маша", 5, "Маша • 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThreadTitle(tt.input, tt.userID); got != tt.want {
				t.Errorf("ThreadTitle(%q, %d) = %q, want %q", tt.input, tt.userID, got, tt.want)
			}
		})
	}
}

func TestThreadTitle_Truncates(t *testing.T) {
	long := strings.Repeat("я", 300)
	got := ThreadTitle(long, 123456789)
	if n := utf8.RuneCountInString(got); n != MaxThreadTitleLen {
		t.Errorf("title length = %d runes, want %d", n, MaxThreadTitleLen)
	}
	if !strings.HasSuffix(got, "… • 123456789") {
		t.Errorf("title %q should end with ellipsis and user id", got)
	}
}

func TestThreadTitle_CountsUTF16Units(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"emoji", strings.Repeat("😀", 100)},
		{"mixed", strings.Repeat("a😀я", 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ThreadTitle(tt.in, 123456789)
			if n := UTF16Len(got); n > MaxThreadTitleLen {
				t.Errorf("title is %d UTF-16 units, limit %d", n, MaxThreadTitleLen)
			}
			if !strings.HasSuffix(got, "… • 123456789") {
				t.Errorf("title %q should end with ellipsis and user id", got)
			}
			if !utf8.ValidString(got) {
				t.Error("title split a character")
			}
		})
	}
}

func TestUTF16Len(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"Маша", 4},
		{"😀", 2},
		{"a😀b", 4},
	}
	for _, tt := range tests {
		if got := UTF16Len(tt.in); got != tt.want {
			t.Errorf("UTF16Len(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTracker_InactiveSince(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.Touch(1, base)
	tr.Touch(2, base.Add(2*time.Hour))
	tr.Touch(3, base.Add(-time.Hour))

	got := make(map[int64]bool)
	for id := range tr.InactiveSince(base.Add(time.Hour)) {
		got[id] = true
	}
	if len(got) != 2 || !got[1] || !got[3] {
		t.Errorf("inactive = %v, want users 1 and 3", got)
	}
}

func TestTracker_TouchNeverGoesBackwards(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.Touch(1, base)
	tr.Touch(1, base.Add(-time.Minute))

	at, ok := tr.LastSeen(1)
	if !ok || !at.Equal(base) {
		t.Errorf("LastSeen = %v, %v; want %v", at, ok, base)
	}
	tr.Forget(1)
	if _, ok := tr.LastSeen(1); ok {
		t.Error("Forget should drop the record")
	}
}

func TestBanSet(t *testing.T) {
	b := make(BanSet)
	if !b.Add(3) || b.Add(3) {
		t.Error("Add should report only the first insertion")
	}
	b.Add(1)
	if got := b.List(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("List = %v, want [1 3]", got)
	}
	if !b.Remove(3) || b.Remove(3) {
		t.Error("Remove should report only the first removal")
	}
	if b.Contains(3) {
		t.Error("3 should no longer be banned")
	}
}
