package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testContainer int64 = -1001234

// fakePlatform records every call and lets tests inject failures.
type fakePlatform struct {
	mu sync.Mutex

	nextThread int64
	nextMsg    int
	fixedID    int64 // when set, every created thread gets this id

	titles []string
	closed []int64
	texts  []TextMessage
	copies []CopyRequest

	createErr error
	closeErr  error
	sendErr   map[int64]error // keyed by target chat id
	copyErr   map[int64]error // keyed by target chat id
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		nextThread: 100,
		nextMsg:    1000,
		sendErr:    make(map[int64]error),
		copyErr:    make(map[int64]error),
	}
}

func (f *fakePlatform) CreateThread(ctx context.Context, containerID int64, title string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.titles = append(f.titles, title)
	if f.fixedID != 0 {
		return f.fixedID, nil
	}
	f.nextThread++
	return f.nextThread, nil
}

func (f *fakePlatform) CloseThread(ctx context.Context, containerID, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, threadID)
	return f.closeErr
}

func (f *fakePlatform) SendText(ctx context.Context, msg TextMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[msg.ChatID]; err != nil {
		return 0, err
	}
	f.texts = append(f.texts, msg)
	f.nextMsg++
	return f.nextMsg, nil
}

func (f *fakePlatform) CopyMessage(ctx context.Context, req CopyRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.copyErr[req.ChatID]; err != nil {
		return 0, err
	}
	f.copies = append(f.copies, req)
	f.nextMsg++
	return f.nextMsg, nil
}

// textsTo returns the texts sent to chatID, in order.
func (f *fakePlatform) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.texts {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

// callsTo counts texts and copies addressed to chatID.
func (f *fakePlatform) callsTo(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.texts {
		if m.ChatID == chatID {
			n++
		}
	}
	for _, c := range f.copies {
		if c.ChatID == chatID {
			n++
		}
	}
	return n
}

func (f *fakePlatform) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles) + len(f.closed) + len(f.texts) + len(f.copies)
}

// recordingStore keeps the last saved snapshot and counts saves.
type recordingStore struct {
	saves   int
	last    models.Snapshot
	saveErr error
	loadErr error
}

func (s *recordingStore) Save(ctx context.Context, snapshot models.Snapshot) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.last = snapshot
	return nil
}

func (s *recordingStore) Load(ctx context.Context) (models.Snapshot, error) {
	if s.loadErr != nil {
		return models.Snapshot{}, s.loadErr
	}
	return s.last, nil
}

// testClock is a manually advanced clock.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

type harness struct {
	relay    *Relay
	platform *fakePlatform
	store    *recordingStore
	clock    *testClock
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		platform: newFakePlatform(),
		store:    &recordingStore{},
		clock:    newTestClock(),
		logs:     logs,
	}
	opts := Options{
		ContainerID: testContainer,
		Platform:    h.platform,
		Store:       h.store,
		Logger:      zap.New(core),
		Now:         h.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.relay = r
	return h
}

var msgSeq int

func privateMsg(userID int64, name, text string) Event {
	msgSeq++
	return Event{
		Kind:      EventPrivate,
		ChatID:    userID,
		MessageID: msgSeq,
		From:      models.User{ID: userID, FirstName: name},
		Text:      text,
	}
}

func threadMsg(threadID, staffID int64, text string) Event {
	msgSeq++
	return Event{
		Kind:      EventThread,
		ChatID:    testContainer,
		ThreadID:  threadID,
		MessageID: msgSeq,
		From:      models.User{ID: staffID, FirstName: "Staff"},
		Text:      text,
	}
}

func staffCommand(threadID, staffID int64, command string, args ...string) Event {
	msgSeq++
	return Event{
		Kind:      EventCommand,
		ChatID:    testContainer,
		ThreadID:  threadID,
		MessageID: msgSeq,
		From:      models.User{ID: staffID, FirstName: "Staff"},
		Command:   command,
		Args:      args,
	}
}

func userCommand(userID int64, command string) Event {
	msgSeq++
	return Event{
		Kind:      EventCommand,
		ChatID:    userID,
		MessageID: msgSeq,
		From:      models.User{ID: userID, FirstName: "User"},
		Command:   command,
		Private:   true,
	}
}

func containsText(texts []string, sub string) bool {
	for _, s := range texts {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")
