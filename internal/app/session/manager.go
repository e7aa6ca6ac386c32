package session

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/PabloGalante/kbrelay/internal/domain"
	"github.com/PabloGalante/kbrelay/internal/observability"
)

// DefaultRefreshInterval is the keep-alive period for the upstream token.
const DefaultRefreshInterval = 600 * time.Second

var ErrAlreadyRunning = errors.New("session manager already running")

type Options struct {
	NotebookID      string
	CredentialPath  string
	RefreshInterval time.Duration
	PrefetchSources bool
	QueueSize       int

	// Ticks replaces the refresh ticker when set.
	Ticks <-chan time.Time
}

type task struct {
	prompt     string
	result     chan domain.Result // capacity 1, the executor never blocks on it
	enqueuedAt time.Time
}

// Manager owns the single upstream session. Run is the execution context:
// one goroutine performs initialization, every refresh and every ask, one at
// a time. Other goroutines only reach the session through AskAsync.
type Manager struct {
	connector domain.Connector
	opts      Options
	now       func() time.Time

	tasks   chan task
	ready   chan struct{}
	done    chan struct{}
	running atomic.Bool

	// Snapshot fields, written only by the executor.
	state           atomic.Int32
	openedAt        atomic.Int64
	lastRefreshAt   atomic.Int64
	refreshFailures atomic.Int64
	sourceCount     atomic.Int32

	// Owned by the executor goroutine.
	conn      domain.Connection
	sourceIDs []domain.SourceID
}

func NewManager(connector domain.Connector, opts Options) *Manager {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	return &Manager{
		connector: connector,
		opts:      opts,
		now:       time.Now,
		tasks:     make(chan task, opts.QueueSize),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run initializes the session and then serves refresh ticks and queued asks
// until ctx ends. Work still queued or in flight at that point is abandoned.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)

	log := observability.WithFields(ctx, "component", "session")

	m.initialize(ctx, log)
	close(m.ready)

	ticks, stop := m.ticker()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("state", m.State().String()).Msg("session executor stopped")
			return nil
		case <-ticks:
			m.refresh(ctx, log)
		case t := <-m.tasks:
			t.result <- m.serve(ctx, log, t)
		}
	}
}

// AskAsync queues a prompt for the executor and returns the channel its
// result will be delivered on. The executor does not watch the caller: if
// the caller stops waiting, the ask still completes and the result is dropped.
//
// Until initialization has finished nothing is queued and
// domain.ErrSessionUnavailable is returned at once.
func (m *Manager) AskAsync(ctx context.Context, prompt string) (<-chan domain.Result, error) {
	select {
	case <-m.done:
		return nil, domain.ErrSessionUnavailable
	default:
	}
	if st := m.State(); st == StateUninitialized || st == StateInitializing {
		return nil, domain.ErrSessionUnavailable
	}

	t := task{
		prompt:     prompt,
		result:     make(chan domain.Result, 1),
		enqueuedAt: m.now(),
	}

	select {
	case m.tasks <- t:
		return t.result, nil
	case <-m.done:
		return nil, domain.ErrSessionUnavailable
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "enqueue query")
	}
}

// Ready is closed once initialization has finished, live or failed.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) Status() Status {
	st := m.State()
	return Status{
		State:           st.String(),
		Live:            st.Live(),
		OpenedAt:        unixNanoTime(m.openedAt.Load()),
		LastRefreshAt:   unixNanoTime(m.lastRefreshAt.Load()),
		RefreshFailures: m.refreshFailures.Load(),
		Sources:         int(m.sourceCount.Load()),
		QueueDepth:      len(m.tasks),
	}
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Manager) ticker() (<-chan time.Time, func()) {
	if m.opts.Ticks != nil {
		return m.opts.Ticks, func() {}
	}
	t := time.NewTicker(m.opts.RefreshInterval)
	return t.C, t.Stop
}

func (m *Manager) initialize(ctx context.Context, log zerolog.Logger) {
	m.setState(StateInitializing)
	log.Info().Str("credentials", m.opts.CredentialPath).Msg("initializing knowledge base session")

	err := guard(func() error {
		conn, err := m.connector.Connect(ctx, m.opts.CredentialPath)
		if err != nil {
			return errors.Wrap(err, "connect")
		}
		if err := conn.KeepSessionOpen(ctx); err != nil {
			return errors.Wrap(err, "open session")
		}
		m.conn = conn
		return nil
	})
	if err != nil {
		m.setState(StateFailed)
		log.Error().Err(err).Msg("knowledge base session initialization failed; serving in degraded mode")
		return
	}
	m.openedAt.Store(m.now().UnixNano())

	if m.opts.PrefetchSources {
		var ids []domain.SourceID
		err := guard(func() error {
			var err error
			ids, err = m.conn.ListSources(ctx, m.opts.NotebookID)
			return err
		})
		if err != nil {
			log.Warn().Err(err).Msg("source prefetch failed; queries will not be scoped")
		} else {
			m.sourceIDs = slices.Clip(ids)
			m.sourceCount.Store(int32(len(ids)))
		}
	}

	m.setState(StateLive)
	log.Info().Int("sources", len(m.sourceIDs)).Msg("knowledge base session live")
}

// refresh renews the upstream token. A failure never changes liveness.
func (m *Manager) refresh(ctx context.Context, log zerolog.Logger) {
	if m.State() != StateLive {
		return
	}

	m.setState(StateRefreshing)
	defer m.setState(StateLive)

	start := m.now()
	log.Info().Msg("keep-alive: refreshing auth token")

	if err := guard(func() error { return m.conn.RefreshAuth(ctx) }); err != nil {
		m.refreshFailures.Add(1)
		log.Warn().Err(err).Msg("keep-alive refresh failed; session stays live")
		return
	}

	m.lastRefreshAt.Store(m.now().UnixNano())
	log.Info().Int64("elapsed_ms", m.now().Sub(start).Milliseconds()).Msg("keep-alive refresh succeeded")
}

func (m *Manager) serve(ctx context.Context, log zerolog.Logger, t task) domain.Result {
	log.Debug().
		Int64("queued_ms", m.now().Sub(t.enqueuedAt).Milliseconds()).
		Msg("serving query")

	var answer string
	err := guard(func() error {
		var err error
		answer, err = m.ask(ctx, log, t.prompt)
		return err
	})
	if err != nil && !errors.Is(err, domain.ErrSessionUnavailable) && !errors.Is(err, domain.ErrNoAnswer) {
		err = errors.Wrap(domain.ErrNoAnswer, err.Error())
	}
	return domain.Result{Answer: answer, Err: err}
}

// ask must only run on the executor goroutine.
func (m *Manager) ask(ctx context.Context, log zerolog.Logger, prompt string) (string, error) {
	if !m.State().Live() || m.conn == nil {
		log.Warn().Msg("query short-circuited: session not live")
		return "", domain.ErrSessionUnavailable
	}

	start := m.now()
	answer, err := m.conn.Ask(ctx, m.opts.NotebookID, prompt, m.sourceIDs)
	elapsed := m.now().Sub(start).Milliseconds()
	if err != nil {
		log.Error().Err(err).Int64("elapsed_ms", elapsed).Msg("knowledge base query failed")
		return "", errors.Wrapf(domain.ErrNoAnswer, "ask: %v", err)
	}
	if strings.TrimSpace(answer) == "" {
		log.Error().Int64("elapsed_ms", elapsed).Msg("knowledge base returned an empty answer")
		return "", errors.Wrap(domain.ErrNoAnswer, "empty answer")
	}

	log.Info().Int64("elapsed_ms", elapsed).Int("answer_len", len(answer)).Msg("knowledge base query answered")
	return answer, nil
}

// guard turns a panic in upstream code into an error so the executor survives.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func unixNanoTime(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
