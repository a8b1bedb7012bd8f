// Package io provides a transport over a shared append-only file. Every
// publish appends one JSON line per fragment; subscribers tail the file from
// the offset it had when they subscribed and keep the lines of their topic.
// It suits reactors on one host and debugging, where the file doubles as a
// trace of everything sent.
package io

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/reactorflow/internal/runtime/jsoncodec"
	"github.com/drblury/reactorflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when no file is configured.
const DefaultFilePath = "reactorflow.log"

// PollInterval is how long a subscriber waits at end of file.
var PollInterval = 50 * time.Millisecond

// ErrClosed is returned after Close.
var ErrClosed = errors.New("io: transport is closed")

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build creates a new file transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	path := cfg.GetIOFile()
	if path == "" {
		path = DefaultFilePath
	}
	return transport.Transport{
		Publisher:  NewPublisher(path),
		Subscriber: NewSubscriber(path, logger),
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// record is one line of the file.
type record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends fragments to the file.
type Publisher struct {
	path   string
	mu     sync.Mutex
	closed bool
}

func NewPublisher(path string) *Publisher {
	return &Publisher{path: path}
}

// Publish appends all messages with a single write.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	var buf bytes.Buffer
	for _, msg := range messages {
		line, err := jsoncodec.Marshal(record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return fmt.Errorf("io: encode %s: %w", msg.UUID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	_, err = f.Write(buf.Bytes())
	return errors.Join(err, f.Close())
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Subscriber tails the file.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewSubscriber(path string, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Subscriber{path: path, logger: logger, done: make(chan struct{})}
}

// Subscribe starts tailing at the current end of the file.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, offset, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, offset int64, topic string, out chan<- *message.Message) {
	reader := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if err == nil {
			offset += int64(len(partial))
			line := partial
			partial = nil
			if !s.emit(ctx, line, topic, out) {
				return
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			s.logger.Error("io: read failed", err, watermill.LogFields{"file": s.path})
			return
		}

		// A writer may be mid-line. Keep the partial bytes and poll again.
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-time.After(PollInterval):
		}
		if _, err := f.Seek(offset+int64(len(partial)), io.SeekStart); err != nil {
			s.logger.Error("io: seek failed", err, watermill.LogFields{"file": s.path})
			return
		}
		reader.Reset(f)
	}
}

func (s *Subscriber) emit(ctx context.Context, line []byte, topic string, out chan<- *message.Message) bool {
	var rec record
	if err := jsoncodec.Unmarshal(line, &rec); err != nil {
		s.logger.Error("io: skipping malformed line", err, watermill.LogFields{"file": s.path})
		return true
	}
	if rec.Topic != topic {
		return true
	}

	msg := message.NewMessage(rec.UUID, rec.Payload)
	for k, v := range rec.Metadata {
		msg.Metadata.Set(k, v)
	}

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("io: fragment nacked, not redelivered", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
	return true
}

// Close stops every tail and waits for them to exit.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
