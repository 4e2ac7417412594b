package indexcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentx-labs/capreg/internal/report"
)

// ErrUnknownSection is returned for a section name the cache does not hold.
var ErrUnknownSection = errors.New("unknown cache section")

// State is the freshness of a section.
type State string

const (
	Fresh     State = "fresh"
	Stale     State = "stale"
	Computing State = "computing"
)

// ReadMode decides what a read of a Computing section does.
type ReadMode string

const (
	// ReadBlock waits for the running computation.
	ReadBlock ReadMode = "block"
	// ReadStale returns the previous payload flagged Stale when there is one.
	ReadStale ReadMode = "stale"
)

// ComputeFunc produces a section payload as JSON.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

// Section defines one cached payload.
type Section struct {
	Name     string
	Triggers []string
	Compute  ComputeFunc
}

// Result is a payload returned by Get.
type Result struct {
	Section    string          `json:"section"`
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
	Signature  string          `json:"signature"`
	Stale      bool            `json:"stale,omitempty"`
}

// Transition is one state change of a section.
type Transition struct {
	Section string
	From    State
	To      State
}

// Status describes a section for reporting.
type Status struct {
	Name       string    `json:"name"`
	State      State     `json:"state"`
	Triggers   []string  `json:"triggers"`
	ComputedAt time.Time `json:"computed_at,omitempty"`
	Signature  string    `json:"signature,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Options configures a Cache.
type Options struct {
	// Root is the corpus root that triggers are relative to.
	Root string
	// Store persists entries. Nil keeps them in memory.
	Store Store
	// ReadMode applies to reads of Computing sections. Defaults to ReadBlock.
	ReadMode ReadMode
	// OnTransition observes every state change. It is called with the cache
	// lock held and must not call back into the cache.
	OnTransition func(Transition)
	// Ignore lists corpus-relative directories that never contribute to a
	// section, such as the cache's own directory. Hidden directories are
	// always ignored.
	Ignore []string
	// Workers bounds concurrent recomputation in RefreshStale and RebuildAll.
	Workers int
	Logger  *slog.Logger
	// Now overrides the clock for ComputedAt.
	Now func() time.Time
}

// Cache is a set of sections with staleness tracking.
type Cache struct {
	root    string
	store   Store
	mode    ReadMode
	hook    func(Transition)
	ignore  []string
	workers int
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	order    []string
	sections map[string]*section
}

type section struct {
	def     Section
	state   State
	entry   *Entry
	gen     uint64
	done    chan struct{} // closed when the running computation ends
	lastErr error
}

// New builds a cache for sections and restores persisted entries whose
// signatures still match the corpus. A persisted state that cannot be used
// leaves every section Stale.
func New(opts Options, sections ...Section) (*Cache, error) {
	c := &Cache{
		root:     opts.Root,
		store:    opts.Store,
		mode:     opts.ReadMode,
		hook:     opts.OnTransition,
		workers:  opts.Workers,
		logger:   opts.Logger,
		now:      opts.Now,
		sections: make(map[string]*section, len(sections)),
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.mode == "" {
		c.mode = ReadBlock
	}
	if c.workers < 1 {
		c.workers = 1
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	for _, ig := range opts.Ignore {
		if ig = normalizeTrigger(ig); ig != "" {
			c.ignore = append(c.ignore, ig)
		}
	}

	for _, def := range sections {
		if def.Name == "" || def.Compute == nil {
			return nil, fmt.Errorf("section %q needs a name and a compute function", def.Name)
		}
		if _, dup := c.sections[def.Name]; dup {
			return nil, fmt.Errorf("duplicate section %q", def.Name)
		}
		c.sections[def.Name] = &section{def: def, state: Stale}
		c.order = append(c.order, def.Name)
	}

	entries, err := c.store.Load()
	switch {
	case errors.Is(err, report.ErrCacheSignatureMismatch):
		c.logger.Warn("discarding persisted cache", "error", err)
		entries = nil
	case err != nil:
		return nil, err
	}

	sigs, err := c.signatures()
	if err != nil {
		return nil, err
	}
	for _, name := range c.order {
		e, ok := entries[name]
		if !ok {
			continue
		}
		s := c.sections[name]
		s.entry = &e
		if e.Signature == sigs[name] {
			s.state = Fresh
		}
	}
	return c, nil
}

// Sections returns the section names in registration order.
func (c *Cache) Sections() []string {
	return append([]string(nil), c.order...)
}

// Get returns the payload of a section, computing it when Stale. A Fresh
// section is answered from memory without touching the filesystem.
func (c *Cache) Get(ctx context.Context, name string) (Result, error) {
	c.mu.Lock()
	s, ok := c.sections[name]
	if !ok {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownSection, name)
	}
	return c.getLocked(ctx, s)
}

// getLocked is entered with c.mu held and returns with it released.
func (c *Cache) getLocked(ctx context.Context, s *section) (Result, error) {
	for {
		switch s.state {
		case Fresh:
			r := s.result(false)
			c.mu.Unlock()
			return r, nil

		case Computing:
			if c.mode == ReadStale && s.entry != nil {
				r := s.result(true)
				c.mu.Unlock()
				return r, nil
			}
			if err := c.waitLocked(ctx, s); err != nil {
				return Result{}, err
			}

		default:
			if err := ctx.Err(); err != nil {
				c.mu.Unlock()
				return Result{}, err
			}
			if err := c.computeLocked(ctx, s); err != nil {
				c.mu.Unlock()
				return Result{}, err
			}
		}
	}
}

// waitLocked waits for the running computation of s. It is entered with
// c.mu held and returns with it held, or released on error.
func (c *Cache) waitLocked(ctx context.Context, s *section) error {
	done := s.done
	c.mu.Unlock()
	select {
	case <-done:
		c.mu.Lock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// computeLocked recomputes s. The lock is released while the compute
// function runs. If s is invalidated meanwhile it ends Stale.
func (c *Cache) computeLocked(ctx context.Context, s *section) error {
	gen := s.gen
	done := make(chan struct{})
	s.done = done
	c.transition(s, Computing)
	c.mu.Unlock()

	start := c.now()
	sig, err := Signature(c.root, s.def.Triggers, c.ignored)
	var payload json.RawMessage
	if err == nil {
		payload, err = s.def.Compute(ctx)
	}
	if err == nil {
		payload, err = compact(payload)
	}

	c.mu.Lock()
	close(done)
	s.done = nil
	if err != nil {
		s.lastErr = err
		c.transition(s, Stale)
		c.logger.Warn("section computation failed", "section", s.def.Name, "error", err)
		return fmt.Errorf("computing section %s: %w", s.def.Name, err)
	}

	e := Entry{Section: s.def.Name, Payload: payload, ComputedAt: c.now().UTC(), Signature: sig}
	s.entry = &e
	s.lastErr = nil
	if s.gen != gen {
		c.transition(s, Stale)
		c.logger.Debug("section invalidated during computation", "section", s.def.Name)
		return nil
	}
	c.transition(s, Fresh)
	c.logger.Debug("section computed", "section", s.def.Name, "duration", c.now().Sub(start), "bytes", len(payload))
	if err := c.store.Put(e); err != nil {
		c.logger.Warn("persisting section failed", "section", s.def.Name, "error", err)
	}
	return nil
}

// Invalidate marks Stale every section with a trigger covering path, which
// may be absolute or relative to the corpus root. It returns the affected
// section names, or nil when no trigger covers the path.
func (c *Cache) Invalidate(path string) []string {
	rel, ok := c.rel(path)
	if !ok || (rel != "" && c.ignored(rel)) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var affected []string
	for _, name := range c.order {
		s := c.sections[name]
		if !anyMatch(s.def.Triggers, rel) {
			continue
		}
		s.gen++
		if s.state == Fresh {
			c.transition(s, Stale)
		}
		affected = append(affected, name)
	}
	return affected
}

// Refresh recomputes a section regardless of its state.
func (c *Cache) Refresh(ctx context.Context, name string) (Result, error) {
	c.mu.Lock()
	s, ok := c.sections[name]
	if !ok {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownSection, name)
	}
	for s.state == Computing {
		if err := c.waitLocked(ctx, s); err != nil {
			return Result{}, err
		}
	}
	s.gen++
	if s.state == Fresh {
		c.transition(s, Stale)
	}
	return c.getLocked(ctx, s)
}

// RefreshStale recomputes every Stale section on a bounded set of workers.
func (c *Cache) RefreshStale(ctx context.Context) error {
	c.mu.Lock()
	var stale []string
	for _, name := range c.order {
		if c.sections[name].state == Stale {
			stale = append(stale, name)
		}
	}
	c.mu.Unlock()
	return c.getAll(ctx, stale)
}

// RebuildAll forces every section Stale and recomputes them all. It is the
// fallback when the trigger map no longer describes the corpus.
func (c *Cache) RebuildAll(ctx context.Context) error {
	c.mu.Lock()
	for _, name := range c.order {
		s := c.sections[name]
		s.gen++
		if s.state == Fresh {
			c.transition(s, Stale)
		}
	}
	c.mu.Unlock()
	return c.getAll(ctx, c.order)
}

func (c *Cache) getAll(ctx context.Context, names []string) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)
	for _, name := range names {
		eg.Go(func() error {
			_, err := c.Get(egCtx, name)
			return err
		})
	}
	return eg.Wait()
}

// Verify recomputes the signature of every section that is not Computing
// and marks it Fresh or Stale accordingly. It returns the Stale names.
func (c *Cache) Verify() ([]string, error) {
	c.mu.Lock()
	gens := make(map[string]uint64, len(c.order))
	for _, name := range c.order {
		gens[name] = c.sections[name].gen
	}
	c.mu.Unlock()

	sigs, err := c.signatures()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []string
	for _, name := range c.order {
		s := c.sections[name]
		if s.state == Computing || s.gen != gens[name] {
			continue
		}
		match := s.entry != nil && s.entry.Signature == sigs[name]
		switch {
		case match && s.state == Stale:
			c.transition(s, Fresh)
		case !match && s.state == Fresh:
			s.gen++
			c.transition(s, Stale)
		}
		if s.state == Stale {
			stale = append(stale, name)
		}
	}
	return stale, nil
}

// Save persists every computed entry.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.order {
		s := c.sections[name]
		if s.entry == nil || s.state != Fresh {
			continue
		}
		if err := c.store.Put(*s.entry); err != nil {
			return err
		}
	}
	return nil
}

// Status reports every section in registration order.
func (c *Cache) Status() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Status, 0, len(c.order))
	for _, name := range c.order {
		s := c.sections[name]
		st := Status{Name: name, State: s.state, Triggers: append([]string(nil), s.def.Triggers...)}
		if s.entry != nil {
			st.ComputedAt = s.entry.ComputedAt
			st.Signature = s.entry.Signature
		}
		if s.lastErr != nil {
			st.Error = s.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// State returns the current state of a section.
func (c *Cache) State(name string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sections[name]
	if !ok {
		return "", false
	}
	return s.state, true
}

// Close releases the store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) signatures() (map[string]string, error) {
	out := make(map[string]string, len(c.order))
	for _, name := range c.order {
		sig, err := Signature(c.root, c.sections[name].def.Triggers, c.ignored)
		if err != nil {
			return nil, err
		}
		out[name] = sig
	}
	return out, nil
}

func (c *Cache) transition(s *section, to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if c.hook != nil {
		c.hook(Transition{Section: s.def.Name, From: from, To: to})
	}
}

func (s *section) result(stale bool) Result {
	return Result{
		Section:    s.def.Name,
		Payload:    s.entry.Payload,
		ComputedAt: s.entry.ComputedAt,
		Signature:  s.entry.Signature,
		Stale:      stale,
	}
}

// rel converts path to a slash path relative to the corpus root.
func (c *Cache) rel(path string) (string, bool) {
	r := filepath.Clean(path)
	if filepath.IsAbs(path) {
		var err error
		if r, err = filepath.Rel(c.root, path); err != nil {
			return "", false
		}
	}
	r = filepath.ToSlash(r)
	switch {
	case r == ".":
		return "", true
	case r == ".." || strings.HasPrefix(r, "../"):
		return "", false
	}
	return r, true
}

func (c *Cache) ignored(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	for _, ig := range c.ignore {
		if rel == ig || strings.HasPrefix(rel, ig+"/") {
			return true
		}
	}
	return false
}

func anyMatch(triggers []string, rel string) bool {
	for _, t := range triggers {
		if Matches(t, rel) {
			return true
		}
	}
	return false
}

func compact(payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		return json.RawMessage("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return buf.Bytes(), nil
}
