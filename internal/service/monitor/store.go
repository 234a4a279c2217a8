package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/plc-monitor/internal/bridge"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/service/poller"
)

// RejectionCounter counts commands refused by a full command bridge.
type RejectionCounter interface {
	CommandRejected()
}

// Store keeps the latest snapshot per system and relays operator commands.
// It implements poller.Sink.
type Store struct {
	// rejections counts saturated sends; optional.
	rejections RejectionCounter

	// mu protects the fields below.
	mu sync.RWMutex
	// commands is the sink announced by the Ready event.
	commands poller.CommandSink
	// snapshots holds the latest snapshot per system.
	snapshots map[string]*plc.SystemInfo
	// known is the system set of the last imported topology; nil until one is loaded.
	known map[string]struct{}
	// lastImportFailure is the last ImportFailed event.
	lastImportFailure *poller.ImportFailed
	// subscribers receive every event.
	subscribers map[uint64]chan poller.Event
	// nextSubscriber is the id of the next subscription.
	nextSubscriber uint64
}

// NewStore creates an empty store.
func NewStore(rejections RejectionCounter) *Store {
	return &Store{
		rejections:  rejections,
		snapshots:   make(map[string]*plc.SystemInfo),
		subscribers: make(map[uint64]chan poller.Event),
	}
}

// Emit implements poller.Sink.
func (s *Store) Emit(ctx context.Context, event poller.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := event.(type) {
	case poller.Ready:
		s.commands = e.Commands
	case poller.Updated:
		if e.System != nil {
			s.snapshots[e.System.Name] = e.System.Clone()
		}
	case poller.Reloaded:
		s.known = make(map[string]struct{}, len(e.Systems))
		for _, name := range e.Systems {
			s.known[name] = struct{}{}
		}

		// Snapshots of systems removed by the reload are stale.
		for name := range s.snapshots {
			if _, ok := s.known[name]; !ok {
				delete(s.snapshots, name)
			}
		}
	case poller.ImportFailed:
		failure := e
		s.lastImportFailure = &failure
	}

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			logger.DebugKV(ctx, "Subscriber lagging, event dropped", "subscriber", id, "kind", event.Kind())
		}
	}
}

// Subscribe registers a subscriber with a buffer of size buffer.
// The returned function unsubscribes and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan poller.Event, func()) {
	ch := make(chan poller.Event, max(1, buffer))

	s.mu.Lock()
	id := s.nextSubscriber
	s.nextSubscriber++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()

			close(ch)
		})
	}
}

// Systems returns copies of the latest snapshots sorted by name.
func (s *Store) Systems() []*plc.SystemInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plc.SystemInfo, 0, len(s.snapshots))
	for _, system := range s.snapshots {
		result = append(result, system.Clone())
	}

	slices.SortFunc(result, func(a, b *plc.SystemInfo) int {
		return strings.Compare(a.Name, b.Name)
	})

	return result
}

// System returns a copy of the latest snapshot of name.
func (s *Store) System(name string) (*plc.SystemInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	system, ok := s.snapshots[name]

	return system.Clone(), ok
}

// LastImportFailure returns the most recent failed reload, if any.
func (s *Store) LastImportFailure() (poller.ImportFailed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastImportFailure == nil {
		return poller.ImportFailed{}, false
	}

	return *s.lastImportFailure, true
}

// ResetSystem queues an alarm reset of one system.
func (s *Store) ResetSystem(ctx context.Context, actor *plc.Actor, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("system name: %w", plc.ErrEmptyArgument)
	}

	s.mu.RLock()
	_, known := s.known[name]
	loaded := s.known != nil
	s.mu.RUnlock()

	if loaded && !known {
		return fmt.Errorf("%w: %s", plc.ErrUnknownSystem, name)
	}

	return s.send(ctx, actor, bridge.ResetOne{System: name})
}

// ResetAll queues an alarm reset of every system known at the time of the call.
func (s *Store) ResetAll(ctx context.Context, actor *plc.Actor) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.known))

	for name := range s.known {
		names = append(names, name)
	}
	s.mu.RUnlock()

	slices.Sort(names)

	return s.send(ctx, actor, bridge.ResetAll{Systems: names})
}

// ReloadTopology queues a topology reload from source.
func (s *Store) ReloadTopology(ctx context.Context, actor *plc.Actor, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return fmt.Errorf("topology source: %w", plc.ErrEmptyArgument)
	}

	return s.send(ctx, actor, bridge.ReloadTopology{Source: source})
}

// send forwards cmd to the poller and audits the outcome.
func (s *Store) send(ctx context.Context, actor *plc.Actor, cmd bridge.Command) error {
	s.mu.RLock()
	commands := s.commands
	s.mu.RUnlock()

	if commands == nil {
		return plc.ErrNotReady
	}

	if err := commands.Send(cmd); err != nil {
		if errors.Is(err, bridge.ErrBridgeFull) && s.rejections != nil {
			s.rejections.CommandRejected()
		}

		logger.WarnKV(ctx, "Command rejected", "command", fmt.Sprintf("%T", cmd), "actor", actor.String(), "error", err)

		return err
	}

	logger.InfoKV(ctx, "Command queued", "command", fmt.Sprintf("%+v", cmd), "actor", actor.String())

	return nil
}
