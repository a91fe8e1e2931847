// Package engine implements the unified scheduling engine behind the
// dashboard: timeline assembly with ghost projection, selection and drag
// state, move/copy resolution, and staleness-driven refresh.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/postline/postline-backend/internal/metrics"
	"github.com/postline/postline-backend/internal/platform"
	"github.com/postline/postline-backend/internal/recur"
	"github.com/postline/postline-backend/internal/remote"
	"github.com/postline/postline-backend/internal/staleness"
	"github.com/postline/postline-backend/internal/store"
	"github.com/postline/postline-backend/internal/timeline"
	"go.uber.org/zap"
)

// Category names one refreshable slice of a project's data.
type Category string

const (
	CategoryPublished Category = "published"
	CategoryScheduled Category = "scheduled"
	CategorySystem    Category = "system"
	CategoryNotes     Category = "notes"
)

// Categories lists every refresh category in fetch order.
var Categories = []Category{CategoryPublished, CategoryScheduled, CategorySystem, CategoryNotes}

var (
	ErrRefreshInFlight = errors.New("engine: refresh already in flight")
	ErrNotDragging     = errors.New("engine: no drag in progress")
	ErrAlreadyDragging = errors.New("engine: drag already in progress")
	ErrNoPendingMove   = errors.New("engine: no pending move/copy confirmation")
	ErrUnknownItem     = errors.New("engine: item not present in the live dataset")
)

type Config struct {
	// TaskPollInterval is the cadence for awaiting external platform tasks.
	TaskPollInterval time.Duration
	// SnapshotTTL bounds how long cached project snapshots live.
	SnapshotTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		TaskPollInterval: 2 * time.Second,
		SnapshotTTL:      10 * time.Minute,
	}
}

// Engine owns all mutable timeline state. Mutations flow through it
// one at a time per session; reads may happen from any number of consumers.
type Engine struct {
	remote   remote.Store
	platform platform.Client
	cache    *store.Cache
	poller   *staleness.Poller
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	config   Config

	mu       sync.RWMutex
	sessions map[string]*Session

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}

	// lastProcessedID is the cursor of the mass-refresh loop; it keeps a
	// silent resync from being triggered twice for the same project while a
	// bulk refresh walks the project list.
	lastProcessedID string
}

func New(
	remoteStore remote.Store,
	platformClient platform.Client,
	cache *store.Cache,
	poller *staleness.Poller,
	logger *zap.SugaredLogger,
	m *metrics.Metrics,
	config Config,
) *Engine {
	return &Engine{
		remote:      remoteStore,
		platform:    platformClient,
		cache:       cache,
		poller:      poller,
		logger:      logger,
		metrics:     m,
		config:      config,
		sessions:    make(map[string]*Session),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Session is the engine's working state for one project/view pair.
type Session struct {
	ProjectID string

	Published []timeline.Post
	Scheduled []timeline.Post
	System    []timeline.Post
	Notes     []timeline.Note

	// Loaded is set once an initial load completed; navigation before that
	// always triggers a full fetch.
	Loaded bool

	Loading map[Category]bool
	Errors  map[Category]string

	// Suppression flags: while set, staleness-driven refresh for this
	// project is skipped until an explicit refresh clears them.
	PermissionDenied bool
	EmptyDataNotice  bool

	// Interaction state, see interaction.go.
	interaction interactionState

	refreshing bool
}

func newSession(projectID string) *Session {
	return &Session{
		ProjectID: projectID,
		Loading:   make(map[Category]bool),
		Errors:    make(map[Category]string),
	}
}

// session returns the project's session, creating it on first use. Callers
// must hold e.mu.
func (e *Engine) sessionLocked(projectID string) *Session {
	s, ok := e.sessions[projectID]
	if !ok {
		s = newSession(projectID)
		e.sessions[projectID] = s
	}
	return s
}

// Timeline builds the merged timeline for the visible window: the three real
// collections plus ghost occurrences projected from the system subset.
// Ghosts are recomputed on every call and never stored.
func (e *Engine) Timeline(ctx context.Context, projectID string, window timeline.Window) []timeline.Post {
	e.mu.RLock()
	s, ok := e.sessions[projectID]
	if !ok {
		e.mu.RUnlock()
		return nil
	}
	merged := timeline.Merge(s.Published, s.Scheduled, s.System)
	e.mu.RUnlock()

	ghosts, capped := recur.ProjectAll(timeline.SystemSubset(merged), window)
	for _, id := range capped {
		e.logger.Warnw("Recurrence projection hit step cap; rule likely misconfigured",
			"project", projectID,
			"post", id,
			"cap", recur.MaxSteps,
		)
		if e.metrics != nil {
			e.metrics.RecordProjectionCapHit(ctx, id)
		}
	}
	if e.metrics != nil {
		e.metrics.RecordGhostProjection(ctx, len(ghosts))
	}

	return timeline.ClipToWindow(timeline.MergeWithGhosts(merged, ghosts), window)
}

// Notes returns the project's calendar annotations.
func (e *Engine) Notes(projectID string) []timeline.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[projectID]
	if !ok {
		return nil
	}
	return append([]timeline.Note(nil), s.Notes...)
}

// Flags reports the per-category loading and error state plus the
// suppression flags for a project.
type Flags struct {
	Loaded           bool                `json:"loaded"`
	Loading          map[Category]bool   `json:"loading"`
	Errors           map[Category]string `json:"errors"`
	PermissionDenied bool                `json:"permission_denied"`
	EmptyDataNotice  bool                `json:"empty_data_notice"`
}

func (e *Engine) Flags(projectID string) Flags {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[projectID]
	if !ok {
		return Flags{Loading: map[Category]bool{}, Errors: map[Category]string{}}
	}
	loading := make(map[Category]bool, len(s.Loading))
	for k, v := range s.Loading {
		loading[k] = v
	}
	errs := make(map[Category]string, len(s.Errors))
	for k, v := range s.Errors {
		errs[k] = v
	}
	return Flags{
		Loaded:           s.Loaded,
		Loading:          loading,
		Errors:           errs,
		PermissionDenied: s.PermissionDenied,
		EmptyDataNotice:  s.EmptyDataNotice,
	}
}

// findPost resolves an id against the live collections. Callers must hold
// e.mu.
func (s *Session) findPost(id string) (timeline.Post, bool) {
	for _, set := range [][]timeline.Post{s.Published, s.Scheduled, s.System} {
		for _, p := range set {
			if p.ID == id {
				return p, true
			}
		}
	}
	return timeline.Post{}, false
}

func (s *Session) findNote(id string) (timeline.Note, bool) {
	for _, n := range s.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return timeline.Note{}, false
}
