package notify

import (
	"context"
	"fmt"
	"sync"
)

// Sender publishes one structured message to the fan-out channel and
// returns a delivery-assigned message id.
type Sender interface {
	Publish(ctx context.Context, subject, body string, attrs map[string]string) (string, error)
}

// MemorySender records published messages for tests and local mode.
type MemorySender struct {
	mu        sync.Mutex
	Published []PublishedMessage

	// Err, when set, is returned by every Publish call.
	Err error
}

// PublishedMessage is one captured publish call.
type PublishedMessage struct {
	Subject    string
	Body       string
	Attributes map[string]string
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Publish(_ context.Context, subject, body string, attrs map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.Published = append(s.Published, PublishedMessage{Subject: subject, Body: body, Attributes: attrs})
	return fmt.Sprintf("msg-%d", len(s.Published)), nil
}

// Last returns the most recent publish, if any.
func (s *MemorySender) Last() (PublishedMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Published) == 0 {
		return PublishedMessage{}, false
	}
	return s.Published[len(s.Published)-1], true
}
