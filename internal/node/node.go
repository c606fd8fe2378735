package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/infigrid-core/internal/journal"
	"github.com/nerrad567/infigrid-core/internal/ledger"
)

const (
	defaultEventBuffer    = 1024
	defaultPublishTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the node.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node's logger.
func WithLogger(l Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithSink registers an event sink at construction.
func WithSink(s Sink) Option {
	return func(n *Node) { n.sinks = append(n.sinks, s) }
}

// WithEventBuffer sets how many committed events may wait for dispatch
// before new ones are dropped.
func WithEventBuffer(size int) Option {
	return func(n *Node) {
		if size > 0 {
			n.eventBuffer = size
		}
	}
}

// WithPublishTimeout bounds each sink Publish call.
func WithPublishTimeout(d time.Duration) Option {
	return func(n *Node) {
		if d > 0 {
			n.publishTimeout = d
		}
	}
}

// Node is the single sequential processor that drives the ledger.
//
// Every mutation runs under one exclusive lock: the node assigns the next
// sequence number, applies the call to the ledger, and appends it to the
// journal. A call the ledger rejects consumes no sequence number. A call the
// journal fails to store is undone by rebuilding the ledger from the journal,
// so the in-memory state never holds an unjournalled mutation. If that
// rebuild fails too, the ledger is discarded and the node degrades: reads and
// writes both return ErrDegraded until restart.
//
// Committed events are queued in commit order and published to sinks by a
// dispatch goroutine. Sinks never affect the outcome of a transaction.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Node struct {
	mu       sync.RWMutex
	ledger   *ledger.Ledger
	journal  *journal.Journal
	head     journal.Head
	degraded bool
	closed   bool

	sinksMu        sync.RWMutex
	sinks          []Sink
	events         chan Event
	eventBuffer    int
	publishTimeout time.Duration
	wg             sync.WaitGroup

	logger Logger
	now    func() time.Time
}

// Open rebuilds the ledger by replaying j, verifying the hash chain and
// sequence continuity on the way, and starts event dispatch.
func Open(ctx context.Context, j *journal.Journal, opts ...Option) (*Node, error) {
	n := &Node{
		journal:        j,
		eventBuffer:    defaultEventBuffer,
		publishTimeout: defaultPublishTimeout,
		logger:         noopLogger{},
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(n)
	}

	start := time.Now()
	l, head, err := rebuild(ctx, j)
	if err != nil {
		return nil, err
	}
	n.ledger = l
	n.head = head

	n.events = make(chan Event, n.eventBuffer)
	n.wg.Add(1)
	go n.dispatch()

	n.logger.Info("ledger restored from journal",
		"seq", head.Seq,
		"head", head.Hash.String(),
		"duration", time.Since(start),
	)
	return n, nil
}

// rebuild replays the journal into a fresh ledger.
func rebuild(ctx context.Context, j *journal.Journal) (*ledger.Ledger, journal.Head, error) {
	l := ledger.New()
	head, err := j.Replay(ctx, func(e journal.Entry) error {
		call, err := DecodeCall(e.Op, e.Args)
		if err != nil {
			return err
		}
		if _, _, err := call.apply(l, ledger.Tx{Caller: ledger.Principal(e.Caller), Seq: e.Seq}); err != nil {
			return fmt.Errorf("%w: %w", ErrReplayDiverged, err)
		}
		return nil
	})
	if err != nil {
		return nil, journal.Head{}, fmt.Errorf("replaying journal: %w", err)
	}
	return l, head, nil
}

// Submit runs call as one transaction on behalf of caller and returns the
// ledger's result.
//
// Ledger rejections are returned unchanged (inspect with ledger.CodeOf).
// ErrNotCommitted means the journal refused the entry and the call had no
// effect.
func (n *Node) Submit(ctx context.Context, caller ledger.Principal, call Call) (any, error) {
	if err := ledger.ValidatePrincipal(caller); err != nil {
		return nil, err
	}
	args, err := journal.EncodeArgs(call)
	if err != nil {
		return nil, fmt.Errorf("encoding %s arguments: %w", call.Op(), err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	if n.degraded {
		return nil, ErrDegraded
	}

	tx := ledger.Tx{Caller: caller, Seq: n.head.Seq + 1}
	result, events, err := call.apply(n.ledger, tx)
	if err != nil {
		n.logger.Debug("transaction rejected", "op", call.Op(), "caller", caller, "error", err)
		return nil, err
	}

	entry, err := n.journal.Append(ctx, journal.Record{
		Seq:    tx.Seq,
		Caller: string(caller),
		Op:     call.Op(),
		Args:   args,
	})
	if err != nil {
		n.logger.Error("journal append failed, restoring ledger", "op", call.Op(), "seq", tx.Seq, "error", err)
		if !n.restore(ctx) || n.head.Seq != tx.Seq {
			return nil, fmt.Errorf("%w: %w", ErrNotCommitted, err)
		}
		// The entry landed despite the reported error; the rebuilt ledger
		// already contains it.
		n.logger.Warn("journal append reported failure but entry is present", "seq", tx.Seq)
		n.enqueue(events, tx, n.now())
		return result, nil
	}

	n.head = journal.Head{Seq: entry.Seq, Hash: entry.Hash}
	n.enqueue(events, tx, entry.CommittedAt)
	return result, nil
}

// restore rebuilds the ledger from the journal after a failed append. If the
// journal cannot be replayed the node degrades and refuses further mutations.
// Called with n.mu held.
func (n *Node) restore(ctx context.Context) bool {
	l, head, err := rebuild(context.WithoutCancel(ctx), n.journal)
	if err != nil {
		// The ledger still holds the failed call's mutation.
		n.ledger = nil
		n.degraded = true
		n.logger.Error("ledger restore failed, node degraded", "error", err)
		return false
	}
	n.ledger = l
	n.head = head
	return true
}

// enqueue queues events for dispatch without blocking. Called with n.mu held.
func (n *Node) enqueue(events []Event, tx ledger.Tx, at time.Time) {
	for _, ev := range events {
		ev.Seq = tx.Seq
		ev.Caller = tx.Caller
		ev.Timestamp = at
		select {
		case n.events <- ev:
		default:
			n.logger.Warn("event buffer full, dropping event", "type", ev.Type, "seq", ev.Seq)
		}
	}
}

func (n *Node) dispatch() {
	defer n.wg.Done()
	for ev := range n.events {
		n.sinksMu.RLock()
		sinks := n.sinks
		n.sinksMu.RUnlock()

		for _, s := range sinks {
			ctx, cancel := context.WithTimeout(context.Background(), n.publishTimeout)
			if err := s.Publish(ctx, ev); err != nil {
				n.logger.Warn("event sink failed", "sink", s.Name(), "type", ev.Type, "seq", ev.Seq, "error", err)
			}
			cancel()
		}
	}
}

// AddSink registers an event sink. Events committed before the call are not
// replayed to it.
func (n *Node) AddSink(s Sink) {
	n.sinksMu.Lock()
	defer n.sinksMu.Unlock()
	sinks := make([]Sink, len(n.sinks), len(n.sinks)+1)
	copy(sinks, n.sinks)
	n.sinks = append(sinks, s)
}

// View runs fn with shared access to the ledger. fn must only call lookup
// methods and must not retain l. It returns ErrDegraded without calling fn
// once the node has lost its ledger.
func (n *Node) View(fn func(l *ledger.Ledger)) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.degraded || n.ledger == nil {
		return ErrDegraded
	}
	fn(n.ledger)
	return nil
}

// Head returns the last committed journal position.
func (n *Node) Head() journal.Head {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.head
}

// Degraded reports whether the node has stopped accepting mutations.
func (n *Node) Degraded() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.degraded
}

// Close stops accepting mutations and waits for queued events to be
// published.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.events)
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}
