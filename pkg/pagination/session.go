package pagination

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/gourmet-search/pkg/client"
	"github.com/Sternrassler/gourmet-search/pkg/model"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PageSize is the number of records requested per page.
const PageSize = 20

// ErrSuperseded is returned to the caller of a fetch whose result was
// discarded because a newer search started while it was in flight.
var ErrSuperseded = errors.New("superseded by a newer search")

// Prometheus metrics for search sessions.
var (
	sessionPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gourmet_session_pages_total",
		Help: "Pages applied to search sessions by kind (first, more)",
	}, []string{"kind"})

	sessionStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gourmet_session_stale_responses_total",
		Help: "Responses dropped because their search was superseded",
	})

	sessionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gourmet_session_errors_total",
		Help: "Failed session fetches by error class",
	}, []string{"class"})
)

// State is the session state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateError   State = "error"
)

// PageFetcher is the interface the search client must implement for single-page fetching
type PageFetcher interface {
	// FetchPage fetches pageSize records starting at the 1-based startOffset
	FetchPage(ctx context.Context, criteria model.SearchCriteria, startOffset, pageSize int) (*model.SearchResultPage, error)
}

// Snapshot is a consistent copy of the observable session fields.
type Snapshot struct {
	SessionID      string                   `json:"session_id"`
	Version        uint64                   `json:"version"`
	State          State                    `json:"state"`
	Criteria       model.SearchCriteria     `json:"criteria"`
	Records        []model.RestaurantRecord `json:"records"`
	TotalAvailable int                      `json:"total_available"`
	CurrentPage    int                      `json:"current_page"`
	Loading        bool                     `json:"loading"`
	CanLoadMore    bool                     `json:"can_load_more"`
	Err            error                    `json:"-"`
	Error          string                   `json:"error,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the base logger; the session ID is added to it.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithObserver registers a callback invoked after every state transition.
// It runs on the goroutine that caused the transition, outside the lock,
// so concurrent callers may deliver snapshots out of order. Version grows
// with every transition; observers should ignore a snapshot whose Version
// is not newer than the last one they applied.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// Session accumulates the results of one search across pages.
// A single fetch is in flight at a time; a new Search supersedes it.
type Session struct {
	fetcher  PageFetcher
	id       string
	logger   zerolog.Logger
	observer func(Snapshot)

	mu         sync.Mutex
	state      State
	criteria   model.SearchCriteria
	records    []model.RestaurantRecord
	total      int
	page       int
	err        error
	exhausted  bool
	generation uint64
	version    uint64
	cancel     context.CancelFunc
}

// NewSession creates an idle session that fetches pages through fetcher.
func NewSession(fetcher PageFetcher, opts ...Option) *Session {
	s := &Session{
		fetcher: fetcher,
		id:      uuid.NewString(),
		logger:  log.With().Str("component", "pagination").Logger(),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("session_id", s.id).Logger()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Search starts a new search: records are cleared and the page counter
// reset to 1 before the first page is requested. A fetch still in flight
// from an earlier call is cancelled and its result discarded.
func (s *Session) Search(ctx context.Context, criteria model.SearchCriteria) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.cancel != nil {
		s.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.criteria = criteria
	s.records = nil
	s.total = 0
	s.page = 1
	s.err = nil
	s.exhausted = false
	s.state = StateLoading
	snap := s.transitionLocked()
	s.mu.Unlock()
	s.notify(snap)

	s.logger.Debug().
		Uint64("generation", gen).
		Str("range", criteria.Radius.Label()).
		Msg("Starting search")

	page, err := s.fetcher.FetchPage(fetchCtx, criteria, 1, PageSize)
	cancel()

	return s.complete(gen, 1, false, page, err)
}

// LoadMore fetches the next page and appends it. It is a no-op when a
// fetch is already in flight, when nothing has been loaded yet, or when
// every available record has been fetched.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.canLoadMoreLocked() {
		state, loaded, total := s.state, len(s.records), s.total
		s.mu.Unlock()
		s.logger.Debug().
			Str("state", string(state)).
			Int("loaded", loaded).
			Int("total", total).
			Msg("Load more ignored")
		return nil
	}

	gen := s.generation
	next := s.page + 1
	criteria := s.criteria
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.err = nil
	s.state = StateLoading
	snap := s.transitionLocked()
	s.mu.Unlock()
	s.notify(snap)

	page, err := s.fetcher.FetchPage(fetchCtx, criteria, startOffset(next), PageSize)
	cancel()

	return s.complete(gen, next, true, page, err)
}

// LoadAll keeps loading pages until everything available has been
// fetched, an error occurs, or ctx is done.
func (s *Session) LoadAll(ctx context.Context) error {
	start := time.Now()
	pages := 0

	for s.CanLoadMore() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.LoadMore(ctx); err != nil {
			s.logger.Warn().
				Err(err).
				Int("pages", pages).
				Msg("Load all stopped early")
			return err
		}
		pages++

		if pages%5 == 0 {
			snap := s.Snapshot()
			s.logger.Info().
				Int("fetched", len(snap.Records)).
				Int("total", snap.TotalAvailable).
				Msg("Load all progress")
		}
	}

	s.logger.Info().
		Int("pages", pages).
		Int("records", len(s.Records())).
		Dur("duration", time.Since(start)).
		Msg("Load all complete")

	return nil
}

// complete applies the outcome of a fetch tagged with generation gen.
func (s *Session) complete(gen uint64, pageNum int, appendMode bool, page *model.SearchResultPage, err error) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		sessionStaleTotal.Inc()
		s.logger.Debug().
			Uint64("generation", gen).
			Int("page", pageNum).
			Msg("Dropping stale response")
		return ErrSuperseded
	}

	if err == nil && page == nil {
		err = &client.APIError{Class: client.ErrorClassDecode, Message: "fetcher returned no page"}
	}

	if err != nil {
		s.state = StateError
		s.err = err
		snap := s.transitionLocked()
		s.mu.Unlock()

		class := string(client.ClassOf(err))
		if class == "" {
			class = "unknown"
		}
		sessionErrorsTotal.WithLabelValues(class).Inc()
		s.logger.Warn().
			Err(err).
			Int("page", pageNum).
			Str("error_class", class).
			Msg("Page fetch failed")
		s.notify(snap)
		return err
	}

	kind := "first"
	if appendMode {
		kind = "more"
		s.records = append(s.records, page.Records...)
	} else {
		s.records = append([]model.RestaurantRecord(nil), page.Records...)
	}
	s.total = page.TotalAvailable
	s.page = pageNum
	if len(page.Records) == 0 && len(s.records) < s.total {
		// The API reported more records than it delivers.
		s.exhausted = true
	}
	s.state = StateLoaded
	snap := s.transitionLocked()
	s.mu.Unlock()

	sessionPagesTotal.WithLabelValues(kind).Inc()
	s.logger.Debug().
		Int("page", pageNum).
		Int("returned", len(page.Records)).
		Int("loaded", len(snap.Records)).
		Int("total", snap.TotalAvailable).
		Msg("Page applied")
	s.notify(snap)
	return nil
}

// startOffset returns the 1-based API offset of page (1-based).
func startOffset(page int) int {
	return (page-1)*PageSize + 1
}

func (s *Session) canLoadMoreLocked() bool {
	return s.state != StateLoading && !s.exhausted && len(s.records) < s.total
}

// transitionLocked records a state change and returns the snapshot to publish.
func (s *Session) transitionLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:      s.id,
		Version:        s.version,
		State:          s.state,
		Criteria:       s.criteria,
		Records:        append([]model.RestaurantRecord(nil), s.records...),
		TotalAvailable: s.total,
		CurrentPage:    s.page,
		Loading:        s.state == StateLoading,
		CanLoadMore:    s.canLoadMoreLocked(),
		Err:            s.err,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.observer != nil {
		s.observer(snap)
	}
}

// Snapshot returns a copy of the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Records returns a copy of the accumulated records in page order.
func (s *Session) Records() []model.RestaurantRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RestaurantRecord(nil), s.records...)
}

// TotalAvailable returns the total reported by the last successful page.
func (s *Session) TotalAvailable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// CurrentPage returns the 1-based number of the last applied page.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Loading reports whether a fetch is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLoading
}

// Err returns the error of the last failed fetch, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CanLoadMore reports whether LoadMore would issue a request.
func (s *Session) CanLoadMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canLoadMoreLocked()
}

// Close cancels any fetch in flight. The session stays readable.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
	}
	if s.state == StateLoading {
		s.state = StateIdle
		s.version++
	}
}
