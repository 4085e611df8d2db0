package chat

import (
	"sync"

	"github.com/pavelanni/groqquest/internal/model"
)

// EntryState says whether a transcript entry is backed by storage.
type EntryState int

const (
	// LocalOnly entries are shown to the user but not stored.
	LocalOnly EntryState = iota
	// Committed entries match a stored message.
	Committed
)

func (s EntryState) String() string {
	if s == Committed {
		return "committed"
	}
	return "local"
}

// Entry is one message as the user sees it.
type Entry struct {
	Message model.Message
	State   EntryState
	Warning error
}

// Transcript is the visible conversation of one chat session. Entries are
// appended as LocalOnly and replaced in place once stored.
type Transcript struct {
	userID string

	mu      sync.Mutex
	entries []Entry
}

func newTranscript(userID string, stored []model.Message) *Transcript {
	t := &Transcript{userID: userID, entries: make([]Entry, 0, len(stored))}
	for _, m := range stored {
		t.entries = append(t.entries, Entry{Message: m, State: Committed})
	}
	return t
}

// Entries returns a copy of the conversation in order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

func (t *Transcript) appendLocal(m model.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Message: m, State: LocalOnly})
	return len(t.entries) - 1
}

func (t *Transcript) commit(i int, stored model.Message) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[i] = Entry{Message: stored, State: Committed}
	return t.entries[i]
}

func (t *Transcript) keepLocal(i int, warning error) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[i].Warning = warning
	return t.entries[i]
}
