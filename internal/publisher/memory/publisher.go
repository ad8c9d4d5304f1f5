// Package memory provides an in-process publisher for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message captures one published payload.
type Message struct {
	Topic   string
	Payload any
}

// Publisher records published messages instead of sending them anywhere.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	nextID   int
}

// New constructs a Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish appends the payload to the in-memory log and returns a message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", p.nextID), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close implements the Publisher interface; it performs no action.
func (p *Publisher) Close() error {
	return nil
}
