// Package notify delivers short user-facing messages about the outcome of
// task operations.
package notify

import (
	"fmt"
	"io"
	"log"
	"sync"
)

type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Writer prints messages to w, one per line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "✓ %s\n", msg)
}

func (n *Writer) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "✗ %s\n", msg)
}

// Log sends messages to the standard logger.
type Log struct{}

func (Log) Success(msg string) { log.Printf("success: %s", msg) }
func (Log) Error(msg string)   { log.Printf("error: %s", msg) }

// Message is a recorded notification.
type Message struct {
	Error bool
	Text  string
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: msg})
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Error: true, Text: msg})
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message{}, r.messages...)
}

// Errors returns the text of every error message.
func (r *Recorder) Errors() []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Error {
			out = append(out, m.Text)
		}
	}
	return out
}
