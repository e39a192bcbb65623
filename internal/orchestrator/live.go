package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/starford/izy/internal/models"
)

// DefaultDebounce is the quiet period before a live search is dispatched.
const DefaultDebounce = 500 * time.Millisecond

// Result is the outcome of one live search generation.
type Result struct {
	Generation uint64
	Query      string
	Documents  []models.Document
	Err        error
}

// LiveSearch debounces search-as-you-type input. Only the result of the
// latest submitted query is ever applied; older results arriving late are
// discarded.
type LiveSearch struct {
	o        *Orchestrator
	settings func() models.Settings
	apply    func(Result)
	delay    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	stopped bool
}

// NewLiveSearch starts a session. settings is read when a search is
// dispatched. apply runs on a timer goroutine and must not call Submit.
func (o *Orchestrator) NewLiveSearch(settings func() models.Settings, delay time.Duration, apply func(Result)) *LiveSearch {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LiveSearch{
		o:        o,
		settings: settings,
		apply:    apply,
		delay:    delay,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit replaces any pending query with query and returns its generation.
func (l *LiveSearch) Submit(query string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return l.gen
	}
	l.gen++
	gen := l.gen
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.delay, func() { l.run(gen, query) })
	return gen
}

func (l *LiveSearch) run(gen uint64, query string) {
	docs, err := l.o.FetchDocuments(l.ctx, l.settings(), query)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || gen != l.gen {
		l.o.logger.Debug("orchestrator: stale live search result dropped")
		return
	}
	l.apply(Result{Generation: gen, Query: query, Documents: docs, Err: err})
}

// Generation returns the latest submitted generation.
func (l *LiveSearch) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// Stop cancels the pending timer and any in-flight search.
func (l *LiveSearch) Stop() {
	l.mu.Lock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
	l.cancel()
}
