// Package relay implements the single-threaded cooperative scheduler
// that drives every link: opening and reopening serial ports,
// forwarding one byte at a time into each link's parser, and running
// the periodic send/request cycle that makes craft visible to each
// other.
package relay

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stewlg/craftrelay/internal/craft"
	"github.com/stewlg/craftrelay/internal/link"
)

// reopenInterval is how long the scheduler waits after a failed or
// absent port before trying to open it again.
const reopenInterval = 1 * time.Second

type linkEntry struct {
	session         *link.Session
	opener          func() (link.Port, error)
	nextOpenAttempt time.Time
}

type readEvent struct {
	name string
	b    byte
	err  error
}

// Scheduler owns every link and phantom craft and runs the relay's
// single event loop: one goroutine per link performs blocking one-byte
// reads and funnels them into a shared channel; everything else
// (parsing, state transitions, periodic sends) happens on the loop
// goroutine so there is exactly one writer to any link's state at a
// time.
type Scheduler struct {
	mu        sync.Mutex
	links     map[string]*linkEntry
	order     []string
	nextIndex int
	phantoms  []*craft.PhantomCraft
	logger    zerolog.Logger
	refresh   time.Duration
	events    chan readEvent
	redact    func(latDeg, lonDeg float64) string

	shuttingDown atomic.Bool
}

// NewScheduler builds an empty Scheduler that polls every refresh
// interval.
func NewScheduler(refresh time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		links:   make(map[string]*linkEntry),
		logger:  logger,
		refresh: refresh,
		events:  make(chan readEvent, 64),
	}
}

// SetPositionRedactor wires how every link currently registered (and
// every link registered afterward) formats lat/lon pairs in its log
// lines; the main binary passes logging.Set.RedactedLatLon so
// --omitgpspos reaches position log output.
func (s *Scheduler) SetPositionRedactor(fn func(latDeg, lonDeg float64) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redact = fn
	for _, entry := range s.links {
		entry.session.SetPositionRedactor(fn)
	}
}

// AddLink registers a link by name. opener is called (possibly
// repeatedly, with reopenInterval between attempts) to obtain a fresh
// transport whenever the link is in StateClosed or StateOpenFailed.
func (s *Scheduler) AddLink(name string, staleIntervalMillis int, exitOnGpsLoss bool, opener func() (link.Port, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger := s.logger.With().Str("link", name).Logger()
	session := link.New(name, staleIntervalMillis, exitOnGpsLoss, logger)
	if s.redact != nil {
		session.SetPositionRedactor(s.redact)
	}
	s.links[name] = &linkEntry{
		session: session,
		opener:  opener,
	}
	s.order = append(s.order, name)
}

// SetExitHandler wires the exit-on-gps-loss callback for every
// registered link.
func (s *Scheduler) SetExitHandler(fn func(linkName string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, entry := range s.links {
		name := name
		entry.session.SetExitHandler(func(*link.Session) { fn(name) })
	}
}

// AddPhantom registers a synthetic craft to be offered to eligible
// links every poll.
func (s *Scheduler) AddPhantom(p *craft.PhantomCraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phantoms = append(s.phantoms, p)
}

// Shutdown stops the scheduler from performing any further sends or
// open attempts; in-flight reads are allowed to drain. Safe to call
// from any goroutine, any number of times.
func (s *Scheduler) Shutdown() {
	s.shuttingDown.Store(true)
}

// ShuttingDown reports whether Shutdown has been called.
func (s *Scheduler) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Run drives the scheduler until ctx is cancelled. It is the relay's
// only event loop: a select between the shared read-byte channel and a
// ticker that drives the periodic poll.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.handleEvent(ev)
		case now := <-ticker.C:
			s.poll(now)
		}
	}
}

func (s *Scheduler) handleEvent(ev readEvent) {
	s.mu.Lock()
	entry, ok := s.links[ev.name]
	s.mu.Unlock()
	if !ok {
		return
	}
	if ev.err != nil {
		entry.session.HandleIOError(ev.err, time.Now())
		return
	}
	_ = entry.session.Feed(ev.b, time.Now())
}

// poll services exactly one link per call, advancing the round-robin
// index by one every time regardless of that link's state. This is the
// scheduler's only unit of forward progress: over N*len(order) calls,
// every link is serviced the same number of times, to within one.
//
// TODO: service links nearest the one just completed first, so
// geographically close craft hear about each other with lower latency
// than one stuck at the end of a long order slice.
func (s *Scheduler) poll(now time.Time) {
	if s.ShuttingDown() {
		return
	}

	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return
	}
	order := append([]string(nil), s.order...)
	phantoms := append([]*craft.PhantomCraft(nil), s.phantoms...)
	idx := s.nextIndex % len(order)
	s.nextIndex = (idx + 1) % len(order)
	name := order[idx]
	entry := s.links[name]
	s.mu.Unlock()

	if entry.session.State() == link.StateClosed || entry.session.State() == link.StateOpenFailed {
		s.tryOpen(name, entry, now)
		return
	}

	entry.session.CheckWatchdog(now)
	if entry.session.State() == link.StateOpened {
		if err := entry.session.RequestMissingIdentity(); err != nil {
			entry.session.HandleIOError(err, now)
		}
		return
	}
	if entry.session.State() != link.StateRunning {
		return
	}

	s.sendRealPeers(name, order, now)
	s.updatePhantomReferences(name, phantoms, now)
	s.sendPhantoms(name, phantoms)

	if err := entry.session.RequestOwnGps(); err != nil {
		entry.session.HandleIOError(err, now)
	}
}

func (s *Scheduler) tryOpen(name string, entry *linkEntry, now time.Time) {
	if now.Before(entry.nextOpenAttempt) {
		return
	}
	port, err := entry.opener()
	if err != nil {
		entry.session.MarkOpenFailed(err)
		entry.nextOpenAttempt = now.Add(reopenInterval)
		return
	}
	if err := entry.session.Open(port, now); err != nil {
		entry.session.MarkOpenFailed(err)
		entry.nextOpenAttempt = now.Add(reopenInterval)
		return
	}
	s.startReader(name, port)
}

func (s *Scheduler) startReader(name string, port link.Port) {
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := port.Read(buf)
			if err != nil {
				s.events <- readEvent{name: name, err: err}
				return
			}
			if n == 1 {
				s.events <- readEvent{name: name, b: buf[0]}
			}
		}
	}()
}

func (s *Scheduler) sendRealPeers(name string, order []string, now time.Time) {
	s.mu.Lock()
	self := s.links[name]
	s.mu.Unlock()

	if !self.session.WantsOtherCraftPositions() {
		return
	}

	for _, other := range order {
		if other == name {
			continue
		}
		s.mu.Lock()
		otherEntry := s.links[other]
		s.mu.Unlock()

		pos, ok, stale := otherEntry.session.LastKnownPosition(now)
		if !ok {
			continue
		}
		if stale {
			s.logger.Warn().Str("link", name).Str("sourceLink", other).Msg("suppressing stale craft position")
			continue
		}
		if err := self.session.SendCraftPosition(pos); err != nil {
			self.session.HandleIOError(err, now)
			return
		}
	}
}

// updatePhantomReferences refreshes each wingman phantom craft that
// targets this link (or targets "all") with this link's own most
// recent position, immediately before eligibility is checked for this
// same link. A wingman's reference is always the craft attached to its
// configured target port, offering a loopback check: the flight
// controller on that port sees a synthetic copy of itself at a fixed
// bearing and distance, without needing a second real craft.
func (s *Scheduler) updatePhantomReferences(name string, phantoms []*craft.PhantomCraft, now time.Time) {
	s.mu.Lock()
	self := s.links[name]
	s.mu.Unlock()

	pos, ok, stale := self.session.LastKnownPosition(now)
	if !ok {
		return
	}
	for _, ph := range phantoms {
		if ph.Kind != craft.PhantomWingman {
			continue
		}
		if strings.EqualFold(ph.TargetPort(), name) || strings.EqualFold(ph.TargetPort(), "all") {
			ph.UpdateReference(pos, stale)
		}
	}
}

func (s *Scheduler) sendPhantoms(name string, phantoms []*craft.PhantomCraft) {
	s.mu.Lock()
	self := s.links[name]
	s.mu.Unlock()

	if !self.session.WantsOtherCraftPositions() {
		return
	}

	for _, ph := range phantoms {
		eligible, _ := ph.Eligible(name)
		if !eligible {
			continue
		}
		if err := self.session.SendCraftPosition(ph.CurrentPosition()); err != nil {
			self.session.HandleIOError(err, time.Now())
			return
		}
	}
}
