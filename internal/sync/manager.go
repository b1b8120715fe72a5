package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	gosync "sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/remote"
	"go.uber.org/zap"
)

var (
	// ErrNotOpen is returned for conversations without an open view.
	ErrNotOpen = errors.New("conversation not open")
	// ErrManagerClosed is returned after Shutdown.
	ErrManagerClosed = errors.New("manager shut down")
)

// Registry remembers which conversations are open across restarts.
type Registry interface {
	MarkConversationOpen(id string) error
	MarkConversationClosed(id string) error
	OpenConversations() ([]string, error)
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Remote   remote.Store
	Cache    cache.Cache
	Source   connectivity.Source
	Bus      *bus.Bus
	Registry Registry
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type entry struct {
	ctrl  *Controller
	gate  *outbox.Gate
	unsub func()
}

// Manager owns one Controller per open conversation. Controllers share the
// connectivity source but nothing else.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      gosync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewManager creates a manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// ValidateConversationID rejects IDs that cannot be used as cache keys.
func ValidateConversationID(id string) error {
	if id == "" {
		return errors.New("conversation id is empty")
	}
	if len(id) > 256 {
		return errors.New("conversation id longer than 256 bytes")
	}
	if strings.ContainsAny(id, "\x00\n") {
		return fmt.Errorf("conversation id %q contains control characters", id)
	}
	return nil
}

// Open starts a controller for id. Opening an already open conversation
// returns its current view.
func (m *Manager) Open(id string) (View, error) {
	if err := ValidateConversationID(id); err != nil {
		return View{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return View{}, ErrManagerClosed
	}
	if e, ok := m.entries[id]; ok {
		return e.ctrl.View(), nil
	}

	ctrl := New(Config{
		ConversationID: id,
		Remote:         m.cfg.Remote,
		Cache:          m.cfg.Cache,
		Sink:           BusSink{Bus: m.cfg.Bus},
		Logger:         m.logger,
		Metrics:        m.cfg.Metrics,
	})
	readings, unsub := m.cfg.Source.Subscribe()
	ctrl.Start(m.ctx, readings)

	m.entries[id] = &entry{
		ctrl:  ctrl,
		gate:  outbox.NewGate(id, ctrl, m.cfg.Remote, m.cfg.Bus, m.logger, m.cfg.Metrics),
		unsub: unsub,
	}
	if m.cfg.Registry != nil {
		if err := m.cfg.Registry.MarkConversationOpen(id); err != nil {
			m.logger.Warn("failed to record open conversation", zap.String("conversation", id), zap.Error(err))
		}
	}
	m.cfg.Metrics.ConversationOpened()
	m.cfg.Bus.Publish(bus.NewEvent(bus.KindConversationOpened, map[string]string{"conversation_id": id}))
	m.logger.Info("conversation opened", zap.String("conversation", id))
	return ctrl.View(), nil
}

// Close stops the controller for id and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, id)
	}

	m.closeEntry(e)
	if m.cfg.Registry != nil {
		if err := m.cfg.Registry.MarkConversationClosed(id); err != nil {
			m.logger.Warn("failed to record closed conversation", zap.String("conversation", id), zap.Error(err))
		}
	}
	m.cfg.Bus.Publish(bus.NewEvent(bus.KindConversationClosed, map[string]string{"conversation_id": id}))
	m.logger.Info("conversation closed", zap.String("conversation", id))
	return nil
}

func (m *Manager) closeEntry(e *entry) {
	e.unsub()
	e.ctrl.Close()
	m.cfg.Metrics.ConversationClosed()
}

// Get returns the view of an open conversation.
func (m *Manager) Get(id string) (View, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotOpen, id)
	}
	return e.ctrl.View(), nil
}

// Conversations returns the views of all open conversations ordered by ID.
func (m *Manager) Conversations() []View {
	m.mu.Lock()
	views := make([]View, 0, len(m.entries))
	for _, e := range m.entries {
		views = append(views, e.ctrl.View())
	}
	m.mu.Unlock()
	slices.SortFunc(views, func(a, b View) int { return strings.Compare(a.ConversationID, b.ConversationID) })
	return views
}

// Submit forwards a draft through the conversation's gate.
func (m *Manager) Submit(ctx context.Context, id string, d chat.Draft) (outbox.Receipt, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return outbox.Receipt{}, fmt.Errorf("%w: %s", ErrNotOpen, id)
	}
	return e.gate.Submit(ctx, d)
}

// Restore reopens the conversations recorded in the registry.
func (m *Manager) Restore() error {
	if m.cfg.Registry == nil {
		return nil
	}
	ids, err := m.cfg.Registry.OpenConversations()
	if err != nil {
		return fmt.Errorf("list open conversations: %w", err)
	}
	for _, id := range ids {
		if _, err := m.Open(id); err != nil {
			m.logger.Warn("failed to restore conversation", zap.String("conversation", id), zap.Error(err))
		}
	}
	return nil
}

// Shutdown closes every controller. The registry is left intact so that
// Restore reopens the same conversations.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	// Cancelling first unblocks controllers stuck in remote I/O.
	m.cancel()
	for _, e := range entries {
		m.closeEntry(e)
	}
}
