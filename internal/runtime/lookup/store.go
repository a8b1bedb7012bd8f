// Package lookup is the discovery service reactors publish themselves to and
// resolve each other through.
package lookup

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

var hostPort = regexp.MustCompile(`^[a-zA-Z0-9\-]*(\.[a-zA-Z0-9\-]*)*:[0-9]+$`)

// Entry describes one published reactor.
type Entry struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	StreamID int32  `json:"streamid"`
}

// Validate checks the fields a client controls. A zero StreamID asks the
// store to assign one.
func (e Entry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !hostPort.MatchString(e.Endpoint) {
		problems = append(problems, fmt.Sprintf("endpoint %q must be host:port", e.Endpoint))
	}
	if e.StreamID < 0 {
		problems = append(problems, "streamid can not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", errspkg.ErrInvalidEntry, strings.Join(problems, "; "))
}

// Store keeps published entries in memory. Names are case-insensitive and
// both names and channels are unique.
type Store struct {
	mu       sync.RWMutex
	byName   map[string]Entry
	channels map[int32]string
}

func NewStore() *Store {
	return &Store{
		byName:   make(map[string]Entry),
		channels: make(map[int32]string),
	}
}

// Add publishes e and returns the stored entry, whose channel is assigned
// when e.StreamID is zero. Mixing fixed and assigned channels can still
// collide; the later fixed channel is then rejected.
func (s *Store) Add(e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	e.Name = strings.ToLower(e.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[e.Name]; ok {
		return Entry{}, fmt.Errorf("%w: %s", errspkg.ErrDuplicateName, e.Name)
	}
	if e.StreamID == 0 {
		e.StreamID = s.nextFreeChannel()
	}
	if owner, ok := s.channels[e.StreamID]; ok {
		return Entry{}, fmt.Errorf("%w: %d is used by %s", errspkg.ErrDuplicateChannel, e.StreamID, owner)
	}

	s.byName[e.Name] = e
	s.channels[e.StreamID] = e.Name
	return e, nil
}

// nextFreeChannel returns the smallest channel above zero that is not taken.
func (s *Store) nextFreeChannel() int32 {
	var next int32 = 1
	for {
		if _, taken := s.channels[next]; !taken {
			return next
		}
		next++
	}
}

// Get resolves name, ignoring case.
func (s *Store) Get(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byName[strings.ToLower(name)]
	return e, ok
}

// Remove withdraws name and frees its channel.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(name)
	e, ok := s.byName[key]
	if !ok {
		return false
	}
	delete(s.byName, key)
	delete(s.channels, e.StreamID)
	return true
}

// List returns every entry ordered by name.
func (s *Store) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.byName))
	for _, e := range s.byName {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
