package conversation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
)

// Store holds the ordered message history of one conversation and the
// recording status the controls react to. Insertion order is display order;
// messages are never reordered. All mutation goes through Append, PatchByID
// and Clear.
type Store struct {
	resources *Resources

	mu        sync.RWMutex
	messages  []domain.Message
	recording domain.RecordingStatus
}

func NewStore(resources *Resources) *Store {
	return &Store{
		resources: resources,
		recording: domain.RecordingIdle,
	}
}

// Patch is a partial update merged into a message by PatchByID. Nil fields
// are left untouched.
type Patch struct {
	// AppendContent grows the content of a loading message. Content only
	// grows until finalization; it is never rewritten mid-stream.
	AppendContent string

	// SetContent overwrites the content wholesale. Only meaningful together
	// with a finalizing Status.
	SetContent *string

	Status   *domain.MessageStatus
	AudioRef *string
}

// Append adds a message at the end. Appending a second loading message while
// one is still open breaks the single-stream invariant; it is logged and
// still applied so the history stays inspectable.
func (s *Store) Append(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Status == domain.MessageStatusLoading {
		if _, open := s.loadingLocked(); open {
			slog.Error("Invariant violation: appending a loading message while one is open", "id", msg.ID)
		}
	}

	s.messages = append(s.messages, msg)
}

// PatchByID merges a partial update into the message with the given id. A
// missing id is a programming error on the caller's side: it is logged and
// the patch is dropped, never surfaced to the user.
func (s *Store) PatchByID(id string, patch Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, i, ok := lo.FindIndexOf(s.messages, func(m domain.Message) bool { return m.ID == id })
	if !ok {
		slog.Error("Invariant violation: patching unknown message", "id", id)
		return
	}

	msg := &s.messages[i]
	if patch.AppendContent != "" {
		msg.Content += patch.AppendContent
	}
	if patch.SetContent != nil {
		msg.Content = *patch.SetContent
	}
	if patch.Status != nil {
		msg.Status = *patch.Status
	}
	if patch.AudioRef != nil {
		msg.AudioRef = *patch.AudioRef
	}
}

// Messages returns a copy of the history in display order.
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Loading returns the message currently being streamed into, if any.
func (s *Store) Loading() (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadingLocked()
}

func (s *Store) loadingLocked() (domain.Message, bool) {
	return lo.Find(s.messages, func(m domain.Message) bool {
		return m.Status == domain.MessageStatusLoading
	})
}

// Clear empties the history and releases every audio resource the cleared
// messages referenced.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()

	if err := s.resources.ReleaseAll(); err != nil {
		return fmt.Errorf("releasing audio resources: %w", err)
	}
	return nil
}

func (s *Store) SetRecordingStatus(status domain.RecordingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = status
}

func (s *Store) RecordingStatus() domain.RecordingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

// IsBusy reports whether a send must be refused: a recording is being
// processed or an assistant reply is still streaming.
func (s *Store) IsBusy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.recording == domain.RecordingProcessing {
		return true
	}
	_, loading := s.loadingLocked()
	return loading
}
