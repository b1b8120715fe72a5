// Package sync keeps a conversation's displayed message list consistent with
// the remote store while connectivity comes and goes.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/remote"
	"go.uber.org/zap"
)

// Subscriber opens live queries on the remote store.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string) (*remote.Subscription, error)
}

// Config wires a Controller to its collaborators.
type Config struct {
	ConversationID string
	Remote         Subscriber
	Cache          cache.Cache
	Sink           Sink
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// View is a read-only copy of a controller's state.
type View struct {
	ConversationID string
	Connectivity   connectivity.State
	Messages       chat.List
	Source         Source
	Subscribed     bool
	Closed         bool
}

// openAttempt is one Subscribe call running off the loop. Whoever abandons
// or completes it owns the resulting subscription; resolved is closed once
// no subscription from this attempt is live outside the loop's ownership.
type openAttempt struct {
	cancel   context.CancelFunc
	resolved chan struct{}

	mu        gosync.Mutex
	abandoned bool
	ready     bool
	sub       *remote.Subscription
	err       error
}

// abandon cancels the attempt. A subscription already handed over is
// cancelled here; otherwise the attempt goroutine cancels it.
func (a *openAttempt) abandon() <-chan struct{} {
	a.mu.Lock()
	a.abandoned = true
	sub, ready := a.sub, a.ready
	a.mu.Unlock()
	a.cancel()
	if ready && sub != nil {
		sub.Cancel()
	}
	return a.resolved
}

type loadResult struct {
	epoch uint64
	list  chat.List
	found bool
	err   error
}

// Controller drives one conversation. All state changes happen on a single
// goroutine fed by connectivity readings, remote snapshots and cache loads.
type Controller struct {
	conv    string
	remote  Subscriber
	writer  *cache.Writer
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.Metrics

	loads chan loadResult
	opens chan *openAttempt
	stop  chan struct{}
	done  chan struct{}
	wg    gosync.WaitGroup

	startOnce gosync.Once
	stopOnce  gosync.Once

	cancelLoop context.CancelFunc

	// Owned by the loop goroutine.
	ctx       context.Context
	state     connectivity.State
	sub       *remote.Subscription
	subCancel context.CancelFunc
	opening   *openAttempt
	lastOpen  <-chan struct{}
	epoch     uint64
	list      chat.List

	mu   gosync.RWMutex
	view View
}

// New creates a controller in the Unknown state. Nothing happens until Start.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	c := &Controller{
		conv:    cfg.ConversationID,
		remote:  cfg.Remote,
		sink:    sink,
		logger:  logger.With(zap.String("conversation", cfg.ConversationID)),
		metrics: cfg.Metrics,
		loads:   make(chan loadResult),
		opens:   make(chan *openAttempt),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   connectivity.Unknown,
		view: View{
			ConversationID: cfg.ConversationID,
			Connectivity:   connectivity.Unknown,
		},
	}
	c.writer = cache.NewWriter(cfg.Cache, cfg.ConversationID, c.onCacheWrite)
	return c
}

// ConversationID returns the conversation this controller drives.
func (c *Controller) ConversationID() string {
	return c.conv
}

// Start runs the event loop until Close or ctx is done.
func (c *Controller) Start(ctx context.Context, readings <-chan connectivity.State) {
	c.startOnce.Do(func() {
		c.ctx, c.cancelLoop = context.WithCancel(ctx)
		go c.loop(readings)
	})
}

// Close cancels the active subscription, drains pending cache writes and
// stops the loop. No remote or cache I/O happens after Close returns.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	started := true
	c.startOnce.Do(func() {
		started = false
		close(c.done)
	})
	if !started {
		c.writer.Close()
		c.setView(func(v *View) { v.Closed = true })
		return
	}
	// Unblocks a Subscribe or cache read still in progress.
	c.cancelLoop()
	<-c.done
}

// Connectivity returns the trusted connectivity state.
func (c *Controller) Connectivity() connectivity.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Connectivity
}

// View returns the current state.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

func (c *Controller) loop(readings <-chan connectivity.State) {
	defer close(c.done)
	for {
		var snaps <-chan remote.Snapshot
		if c.sub != nil {
			snaps = c.sub.Snapshots()
		}
		select {
		case <-c.stop:
			c.shutdown()
			return
		case <-c.ctx.Done():
			c.shutdown()
			return
		case r, ok := <-readings:
			if !ok {
				readings = nil
				continue
			}
			c.apply(r)
		case snap := <-snaps:
			c.onSnapshot(snap)
		case res := <-c.loads:
			c.onLoad(res)
		case a := <-c.opens:
			c.onOpen(a)
		}
	}
}

func (c *Controller) apply(reading connectivity.State) {
	to, changed := connectivity.Next(c.state, reading)
	if !changed {
		return
	}
	from := c.state
	c.state = to
	c.epoch++
	c.metrics.Transition(string(from), string(to))
	c.logger.Info("connectivity transition", zap.String("from", string(from)), zap.String("to", string(to)))
	c.setView(func(v *View) { v.Connectivity = to })

	switch to {
	case connectivity.Online:
		c.openSubscription()
	case connectivity.Offline:
		// The subscription is fully unregistered before the cache is read.
		c.loadCache(c.cancelSubscription())
	}
}

// openSubscription starts a Subscribe call off the loop so that readings and
// Close are still served while the remote is slow to answer. An attempt
// starts only after the previous one has been resolved.
func (c *Controller) openSubscription() {
	if c.sub != nil || c.opening != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	a := &openAttempt{cancel: cancel, resolved: make(chan struct{})}
	prev := c.lastOpen
	c.opening = a
	c.lastOpen = a.resolved

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if prev != nil {
			<-prev
		}
		sub, err := c.remote.Subscribe(ctx, c.conv)

		a.mu.Lock()
		if a.abandoned {
			a.mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
			close(a.resolved)
			return
		}
		a.sub, a.err, a.ready = sub, err, true
		a.mu.Unlock()
		close(a.resolved)

		select {
		case c.opens <- a:
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) onOpen(a *openAttempt) {
	if a != c.opening {
		// Abandoned after hand-over; abandon already cancelled it.
		return
	}
	c.opening = nil
	if a.err != nil {
		a.cancel()
		c.subscriptionFailed(a.err)
		return
	}
	c.sub = a.sub
	c.subCancel = a.cancel
	c.metrics.SubscriptionOpened()
	c.setView(func(v *View) { v.Subscribed = true })
}

// cancelSubscription tears down the live subscription and abandons any
// attempt in flight. The returned channel, if non-nil, is closed once the
// abandoned attempt holds nothing live.
func (c *Controller) cancelSubscription() <-chan struct{} {
	var pending <-chan struct{}
	if a := c.opening; a != nil {
		c.opening = nil
		pending = a.abandon()
	}
	if c.sub == nil {
		return pending
	}
	c.sub.Cancel()
	c.subCancel()
	c.sub, c.subCancel = nil, nil
	c.metrics.SubscriptionClosed()
	c.setView(func(v *View) { v.Subscribed = false })
	return pending
}

// subscriptionFailed falls back to the cache for display. Trusted
// connectivity is left as is; a fresh subscription is only attempted on the
// next Offline to Online transition.
func (c *Controller) subscriptionFailed(err error) {
	pending := c.cancelSubscription()
	c.warn(WarningSubscription, err)
	c.epoch++
	c.loadCache(pending)
}

func (c *Controller) onSnapshot(snap remote.Snapshot) {
	if snap.Err != nil {
		c.subscriptionFailed(snap.Err)
		return
	}
	c.metrics.Snapshot()
	list := snap.Messages.Normalize()
	c.list = list
	c.writer.Save(list)
	c.republish(SourceRemote)
}

// loadCache reads the cache off the loop, after, if non-nil, is closed.
func (c *Controller) loadCache(after <-chan struct{}) {
	epoch := c.epoch
	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if after != nil {
			<-after
		}
		l, found, err := c.writer.Load(ctx)
		if !errors.Is(err, cache.ErrWriterClosed) && !errors.Is(err, context.Canceled) {
			c.metrics.CacheOp("read", err)
		}
		select {
		case c.loads <- loadResult{epoch: epoch, list: l, found: found, err: err}:
		case <-c.stop:
		}
	}()
}

func (c *Controller) onLoad(res loadResult) {
	if res.epoch != c.epoch {
		c.logger.Debug("discarding stale cache load")
		return
	}
	switch {
	case res.err != nil:
		c.warn(WarningCacheRead, res.err)
	case res.found:
		c.list = res.list.Normalize()
	default:
		c.list = nil
	}
	c.republish(SourceCache)
}

func (c *Controller) republish(src Source) {
	u := Update{
		ConversationID: c.conv,
		Messages:       c.list,
		Source:         src,
		Connectivity:   c.state,
		At:             time.Now(),
	}
	c.setView(func(v *View) {
		v.Messages = c.list
		v.Source = src
	})
	c.metrics.Republish(string(src))
	c.sink.Republish(u)
}

func (c *Controller) onCacheWrite(err error) {
	c.metrics.CacheOp("write", err)
	if err != nil {
		c.warn(WarningCacheWrite, err)
	}
}

func (c *Controller) warn(kind WarningKind, err error) {
	c.logger.Warn("sync warning", zap.String("kind", string(kind)), zap.Error(err))
	c.metrics.Warning(string(kind))
	c.sink.Warn(Warning{
		ConversationID: c.conv,
		Kind:           kind,
		Err:            err,
		At:             time.Now(),
	})
}

func (c *Controller) shutdown() {
	// Releases load and open goroutines blocked on delivery.
	c.stopOnce.Do(func() { close(c.stop) })
	c.cancelLoop()
	c.cancelSubscription()
	c.writer.Close()
	c.wg.Wait()
	c.setView(func(v *View) { v.Closed = true })
	c.logger.Debug("controller closed")
}

func (c *Controller) setView(fn func(*View)) {
	c.mu.Lock()
	fn(&c.view)
	c.mu.Unlock()
}
