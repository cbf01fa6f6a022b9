package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/oracle"
	"github.com/roach88/pulseledger/internal/store"
)

// Meta keys written at genesis.
const (
	metaAdmin        = "admin"
	metaProtocolID   = "confidential_protocol_id"
	metaEmblemName   = "emblem_name"
	metaEmblemSymbol = "emblem_symbol"
	metaVersion      = "ledger_version"
)

// DefaultCollection is used when no emblem collection is configured.
var DefaultCollection = ir.Collection{Name: "Pulse Emblem", Symbol: "PULSE"}

// Subscriber receives the events of each committed mutation.
type Subscriber func(ctx context.Context, events []ir.Event)

// Ledger is the single entry point for ledger operations.
type Ledger struct {
	mu sync.Mutex

	store  *store.Store
	oracle oracle.Oracle
	clock  Clock
	tokens TokenGenerator
	logger *slog.Logger

	protocolID uint64
	collection ir.Collection

	subMu       sync.RWMutex
	subscribers map[int]Subscriber
	nextSub     int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithTokenGenerator sets the operation token source. Default: UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(l *Ledger) { l.tokens = g }
}

// WithLogger sets the structured logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithProtocolID sets the confidential protocol id recorded at Initialize.
// Default: the oracle's own protocol id.
func WithProtocolID(id uint64) Option {
	return func(l *Ledger) { l.protocolID = id }
}

// WithCollection sets the emblem collection metadata recorded at Initialize.
func WithCollection(c ir.Collection) Option {
	return func(l *Ledger) { l.collection = c }
}

// New creates a Ledger over s. orc may be nil, in which case encrypted
// inputs are rejected as an unsupported protocol.
func New(s *store.Store, orc oracle.Oracle, opts ...Option) *Ledger {
	l := &Ledger{
		store:       s,
		oracle:      orc,
		clock:       SystemClock{},
		tokens:      UUIDv7Generator{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		collection:  DefaultCollection,
		subscribers: make(map[int]Subscriber),
	}
	if orc != nil {
		l.protocolID = orc.ProtocolID()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store.
func (l *Ledger) Store() *store.Store {
	return l.store
}

// Subscribe registers fn for committed events and returns a function that
// removes it.
func (l *Ledger) Subscribe(fn Subscriber) (cancel func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subscribers[id] = fn
	return func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		delete(l.subscribers, id)
	}
}

// LogSubscriber returns a Subscriber that logs each event at Info.
func LogSubscriber(logger *slog.Logger) Subscriber {
	return func(ctx context.Context, events []ir.Event) {
		for _, ev := range events {
			logger.InfoContext(ctx, "event",
				"seq", ev.Seq,
				"kind", ev.Kind,
				"actor", ev.Actor,
				"pulse_id", ev.PulseID,
				"program_id", ev.ProgramID,
				"hash", ev.Hash,
			)
		}
	}
}

// Initialized reports whether Initialize has run.
func (l *Ledger) Initialized(ctx context.Context) (bool, error) {
	_, found, err := l.store.Meta(ctx, metaAdmin)
	return found, err
}

// op is the context of one in-flight mutation.
type op struct {
	ctx    context.Context
	tx     *store.Tx
	name   string
	actor  string
	token  string
	at     int64
	events []ir.Event
}

// eventRef carries the indexed columns of an event.
type eventRef struct {
	pulseID   uint64
	programID uint64
	account   string
}

// emit appends an event to the log inside the operation's transaction.
func (o *op) emit(kind ir.EventKind, ref eventRef, fields ir.Object) error {
	ev, err := o.tx.AppendEvent(o.ctx, ir.Event{
		OpToken:   o.token,
		Kind:      kind,
		PulseID:   ref.pulseID,
		ProgramID: ref.programID,
		Account:   ref.account,
		Actor:     o.actor,
		Fields:    fields,
		At:        o.at,
	})
	if err != nil {
		return err
	}
	o.events = append(o.events, ev)
	return nil
}

// requireRole fails with AccessDenied unless the operation's actor holds role.
func (o *op) requireRole(role ir.Role) error {
	ok, err := o.tx.HasRole(o.ctx, role, o.actor)
	if err != nil {
		return err
	}
	if !ok {
		return accessDenied(role, o.actor)
	}
	return nil
}

// mutate runs fn as one serialized, all-or-nothing ledger operation.
func (l *Ledger) mutate(ctx context.Context, name, caller string, fn func(o *op) error) error {
	return l.run(ctx, name, caller, true, fn)
}

func (l *Ledger) run(ctx context.Context, name, caller string, needInit bool, fn func(o *op) error) error {
	if caller == "" {
		return invalidArgument("%s: caller account is required", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	o := &op{
		ctx:   ctx,
		name:  name,
		actor: caller,
		token: l.tokens.Generate(),
		at:    l.clock.Now(),
	}

	err := l.store.Update(ctx, func(tx *store.Tx) error {
		o.tx = tx
		if needInit {
			if _, found, err := tx.Meta(ctx, metaAdmin); err != nil {
				return err
			} else if !found {
				return newError(CodeNotInitialized, "ledger has not been initialized")
			}
		}
		return fn(o)
	})
	if err != nil {
		level := slog.LevelDebug
		if !IsDomainError(err) {
			level = slog.LevelError
		}
		l.logger.Log(ctx, level, "operation rejected", "op", name, "actor", caller, "op_token", o.token, "error", err)
		return err
	}

	var lastSeq int64
	if n := len(o.events); n > 0 {
		lastSeq = o.events[n-1].Seq
	}
	l.logger.InfoContext(ctx, "operation committed",
		"op", name, "actor", caller, "op_token", o.token, "events", len(o.events), "seq", lastSeq)

	l.notify(ctx, o.events)
	return nil
}

func (l *Ledger) notify(ctx context.Context, events []ir.Event) {
	if len(events) == 0 {
		return
	}
	l.subMu.RLock()
	ids := make([]int, 0, len(l.subscribers))
	for id := range l.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, l.subscribers[id])
	}
	l.subMu.RUnlock()

	for _, s := range subs {
		s(ctx, events)
	}
}

// Initialize performs genesis: admin receives every built-in role and the
// protocol id and emblem collection are fixed. It fails with
// AlreadyInitialized on a ledger that has been initialized before.
func (l *Ledger) Initialize(ctx context.Context, admin string) error {
	return l.run(ctx, "initialize", admin, false, func(o *op) error {
		if _, found, err := o.tx.Meta(ctx, metaAdmin); err != nil {
			return err
		} else if found {
			return newError(CodeAlreadyInitialized, "ledger is already initialized")
		}

		meta := [][2]string{
			{metaAdmin, admin},
			{metaProtocolID, strconv.FormatUint(l.protocolID, 10)},
			{metaEmblemName, l.collection.Name},
			{metaEmblemSymbol, l.collection.Symbol},
			{metaVersion, ir.LedgerVersion},
		}
		for _, kv := range meta {
			if err := o.tx.SetMeta(ctx, kv[0], kv[1]); err != nil {
				return err
			}
		}

		for _, role := range ir.BuiltinRoles {
			if err := o.grant(role, admin); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConfidentialProtocolID returns the protocol id fixed at genesis.
func (l *Ledger) ConfidentialProtocolID(ctx context.Context) (uint64, error) {
	v, found, err := l.store.Meta(ctx, metaProtocolID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, newError(CodeNotInitialized, "ledger has not been initialized")
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errors.Join(errors.New("corrupt protocol id in meta"), err)
	}
	return id, nil
}
