// Package link owns one serial connection's lifecycle: opening it,
// discovering the flight controller's identity, running the steady
// request/response cycle, and resetting the connection when the
// controller stops answering.
package link

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stewlg/craftrelay/internal/craft"
	"github.com/stewlg/craftrelay/internal/geo"
	"github.com/stewlg/craftrelay/internal/msp"
)

// Port is the minimal transport surface a Session needs. Both
// internal/serialport and internal/fakeport satisfy it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// State is where a link currently sits in its lifecycle.
type State int

const (
	// StateClosed is the initial state, and the state after a reset:
	// no port is open.
	StateClosed State = iota
	// StateOpenFailed means the last attempt to open the port failed.
	StateOpenFailed
	// StateOpened means the port is open but identity discovery has
	// not completed.
	StateOpened
	// StateRunning means identity discovery completed and the session
	// is exchanging position traffic normally.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpenFailed:
		return "open-failed"
	case StateOpened:
		return "opened"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// restartTimeout is how long a link tolerates hearing nothing back
// from its flight controller (neither an initial GPS fix, nor a
// refreshed one) before resetting the port.
const restartTimeout = 15 * time.Second

// hardResetCooldown is the minimum spacing between consecutive resets,
// so a controller that is completely gone doesn't make the scheduler
// spin reopening the port every poll.
const hardResetCooldown = 1 * time.Second

// Session is one serial port's link state machine.
type Session struct {
	Name string

	port   Port
	parser *msp.Parser
	logger zerolog.Logger

	state State

	staleIntervalMillis int
	exitOnGpsLoss       bool

	fcInfo msp.FcInfo
	uid    craft.UID

	lastPosition     craft.CraftInfoAndPosition
	havePosition     bool
	lastPositionAt   time.Time
	sessionStartedAt time.Time
	lastResetAt      time.Time

	// onExitOnGpsLoss is invoked instead of performing a reset when the
	// watchdog trips and ExitOnGpsLoss is configured; it exists so
	// tests (and the real binary) decide what "exit" means.
	onExitOnGpsLoss func(*Session)

	// redactPosition formats a lat/lon pair for a log line, honoring
	// --omitgpspos. Defaults to unredacted decimal-degree formatting.
	redactPosition func(latDeg, lonDeg float64) string
}

// New builds a Session in StateClosed for the named port.
func New(name string, staleIntervalMillis int, exitOnGpsLoss bool, logger zerolog.Logger) *Session {
	return &Session{
		Name:                name,
		parser:              msp.NewParser(name),
		logger:              logger,
		state:               StateClosed,
		staleIntervalMillis: staleIntervalMillis,
		exitOnGpsLoss:       exitOnGpsLoss,
		redactPosition:      defaultRedactPosition,
	}
}

func defaultRedactPosition(latDeg, lonDeg float64) string {
	return fmt.Sprintf("%.8f, %.8f", latDeg, lonDeg)
}

// SetPositionRedactor overrides how this session formats lat/lon pairs
// in log lines; the scheduler wires this to logging.Set.RedactedLatLon
// so --omitgpspos reaches every position-reporting log line.
func (s *Session) SetPositionRedactor(fn func(latDeg, lonDeg float64) string) {
	s.redactPosition = fn
}

// SetExitHandler overrides what happens when the identity watchdog
// trips with ExitOnGpsLoss configured. Defaults to a no-op; the main
// binary wires this to an actual process exit.
func (s *Session) SetExitHandler(fn func(*Session)) {
	s.onExitOnGpsLoss = fn
}

// State returns the link's current lifecycle state.
func (s *Session) State() State { return s.state }

// FcInfo returns the discovered flight controller identity so far.
func (s *Session) FcInfo() msp.FcInfo { return s.fcInfo }

// WantsOtherCraftPositions reports whether this link's controller has
// opted in to receiving other craft's positions. Controllers that
// predate relay support (api version < 2.3) never get asked and always
// report false here.
func (s *Session) WantsOtherCraftPositions() bool {
	return s.fcInfo.WantsOtherCraftSet && s.fcInfo.WantsOtherCraft
}

// Open attaches an already-opened transport and requests identity. The
// caller is responsible for actually opening the underlying serial
// device; Open only transitions state and kicks off the discovery
// messages.
func (s *Session) Open(port Port, now time.Time) error {
	s.port = port
	s.parser.Reset()
	s.fcInfo = msp.FcInfo{}
	s.havePosition = false
	s.state = StateOpened
	s.sessionStartedAt = now
	s.lastPositionAt = now
	s.logger.Info().Msg("port opened, requesting identity")
	return s.requestIdentity()
}

// MarkOpenFailed records that opening the underlying port failed.
func (s *Session) MarkOpenFailed(cause error) {
	s.state = StateOpenFailed
	s.logger.Error().Err(cause).Msg("failed to open port")
}

func (s *Session) requestIdentity() error {
	for _, id := range []msp.ID{msp.IDApiVersion, msp.IDFcVariant, msp.IDName, msp.IDUid} {
		if err := s.send(msp.EncodeRequest(id)); err != nil {
			return err
		}
	}
	return nil
}

// RequestMissingIdentity re-requests whichever identity fields remain
// undiscovered, and the other-craft-position setting once api-version
// is known to support it. Called once per poll while the link sits in
// StateOpened, so a request frame lost on the wire is retried on the
// next poll rather than stalling discovery until the watchdog trips.
func (s *Session) RequestMissingIdentity() error {
	if s.state != StateOpened {
		return nil
	}
	if !s.fcInfo.ApiVerSet {
		if err := s.send(msp.EncodeRequest(msp.IDApiVersion)); err != nil {
			return err
		}
	}
	if !s.fcInfo.VariantSet {
		if err := s.send(msp.EncodeRequest(msp.IDFcVariant)); err != nil {
			return err
		}
	}
	if !s.fcInfo.CraftNameSet {
		if err := s.send(msp.EncodeRequest(msp.IDName)); err != nil {
			return err
		}
	}
	if !s.fcInfo.UIDSet {
		if err := s.send(msp.EncodeRequest(msp.IDUid)); err != nil {
			return err
		}
	}
	if s.fcInfo.ApiVer.SupportsRelay() && !s.fcInfo.WantsOtherCraftSet {
		if err := s.send(msp.EncodeFrame(msp.DirToController, msp.IDOtherCraftPositionSetting, msp.EncodeOtherCraftPositionSettingQuery())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) send(data []byte) error {
	if _, err := s.port.Write(data); err != nil {
		return err
	}
	return nil
}

// RequestOwnGps asks the controller for its current position. Called
// once per scheduler poll once a session is running.
func (s *Session) RequestOwnGps() error {
	return s.send(msp.EncodeRequest(msp.IDRawGps))
}

// SendCraftPosition forwards another craft's position to this link's
// controller, the core of the relay's purpose.
func (s *Session) SendCraftPosition(info craft.CraftInfoAndPosition) error {
	return s.send(msp.EncodeFrame(msp.DirToController, msp.IDOtherCraftPosition, msp.EncodeOtherCraftPosition(info)))
}

// Feed processes one received byte. It returns an error only for
// conditions worth surfacing to the scheduler (IO errors); framing and
// protocol errors are logged and absorbed here, since they should
// never destabilize the whole relay.
func (s *Session) Feed(b byte, now time.Time) error {
	frame, err := s.parser.Feed(b)
	if err != nil {
		s.logFrameError(err)
		return nil
	}
	if frame == nil {
		return nil
	}
	s.handleFrame(*frame, now)
	return nil
}

func (s *Session) logFrameError(err error) {
	s.logger.Warn().Err(err).Msg("discarding malformed or unexpected frame")
}

func (s *Session) handleFrame(frame msp.Frame, now time.Time) {
	switch frame.ID {
	case msp.IDApiVersion:
		v, err := msp.DecodeApiVersion(frame.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("bad MSP_API_VERSION payload")
			return
		}
		s.fcInfo.ApiVer = v
		s.fcInfo.ApiVerSet = true
		if !v.SupportsRelay() {
			s.logger.Warn().Msg("flight controller api version predates position relay support")
		}

	case msp.IDFcVariant:
		s.fcInfo.Variant = msp.DecodeFcVariant(frame.Payload)
		s.fcInfo.VariantSet = true

	case msp.IDName:
		s.fcInfo.CraftName = msp.DecodeName(frame.Payload)
		s.fcInfo.CraftNameSet = true

	case msp.IDUid:
		u, err := msp.DecodeUID(frame.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("bad MSP_UID payload")
			return
		}
		s.fcInfo.UID = u
		s.fcInfo.UIDSet = true
		s.uid = craft.UID{Word0: u.Word0, Word1: u.Word1, Word2: u.Word2}

	case msp.IDOtherCraftPositionSetting:
		wants, err := msp.DecodeOtherCraftPositionSetting(frame.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("bad other-craft-position-setting payload")
			return
		}
		s.fcInfo.WantsOtherCraft = wants
		s.fcInfo.WantsOtherCraftSet = true

	case msp.IDRawGps:
		gps, err := msp.DecodeRawGps(frame.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("bad MSP_RAW_GPS payload")
			return
		}
		if !gps.Valid() {
			s.logger.Warn().Msg("discarding MSP_RAW_GPS payload with out-of-range fields")
			return
		}
		s.lastPosition = craft.FromRawGps(s.uid, s.fcInfo.CraftName, gps)
		s.havePosition = true
		s.lastPositionAt = now
		s.logger.Info().
			Str("position", s.redactPosition(geo.MspToDecimal(gps.MspLat), geo.MspToDecimal(gps.MspLon))).
			Int("altMeters", int(gps.AltitudeSigned())).
			Uint16("course", gps.CourseDecideg).
			Uint16("speed", gps.Speed).
			Uint8("numSat", gps.NumSat).
			Msg("got new GPS position")

	default:
		s.logger.Debug().Uint16("msgId", uint16(frame.ID)).Msg("ignoring message id not in catalog")
	}

	s.advanceState(now)
}

func (s *Session) advanceState(now time.Time) {
	if s.state != StateOpened {
		return
	}
	if !s.fcInfo.AllRequiredDiscovered() {
		return
	}
	s.state = StateRunning
	s.lastPositionAt = now
	s.logger.Info().Str("craftName", s.fcInfo.CraftName).Msg("identity discovery complete, session running")
}

// LastKnownPosition returns the most recently decoded position for
// this link's own craft, and whether it counts as stale given the
// configured stale interval (0 disables staleness).
func (s *Session) LastKnownPosition(now time.Time) (pos craft.CraftInfoAndPosition, ok bool, stale bool) {
	if !s.havePosition {
		return craft.CraftInfoAndPosition{}, false, false
	}
	if s.staleIntervalMillis <= 0 {
		return s.lastPosition, true, false
	}
	age := now.Sub(s.lastPositionAt)
	return s.lastPosition, true, age >= time.Duration(s.staleIntervalMillis)*time.Millisecond
}

// CheckWatchdog resets the session if too long has passed without a
// GPS response, either from the moment the session was opened (if
// position was never received) or from the last position received.
func (s *Session) CheckWatchdog(now time.Time) {
	if s.state != StateOpened && s.state != StateRunning {
		return
	}

	var comparison time.Time
	if s.havePosition {
		comparison = s.lastPositionAt
	} else {
		comparison = s.sessionStartedAt
	}
	if comparison.IsZero() {
		return
	}

	if now.Sub(comparison) <= restartTimeout {
		return
	}

	s.logger.Error().Dur("elapsed", now.Sub(comparison)).Msg("no GPS position heard within watchdog bound")

	if s.exitOnGpsLoss {
		s.logger.Error().Msg("exiting due to GPS loss")
		if s.onExitOnGpsLoss != nil {
			s.onExitOnGpsLoss(s)
		}
		return
	}

	if !s.lastResetAt.IsZero() && now.Sub(s.lastResetAt) < hardResetCooldown {
		return
	}
	s.lastResetAt = now
	s.resetSoft(now)
}

// HandleIOError reacts to a read or write failure on this link's
// transport. Errors while the link is already Closed or OpenFailed are
// suppressed, since there is nothing running to destabilize; otherwise
// the port is reset, subject to the same cooldown as a watchdog reset.
func (s *Session) HandleIOError(err error, now time.Time) {
	if s.state == StateClosed || s.state == StateOpenFailed {
		return
	}
	s.logger.Warn().Err(err).Msg("io error on link, resetting port")
	if !s.lastResetAt.IsZero() && now.Sub(s.lastResetAt) < hardResetCooldown {
		return
	}
	s.lastResetAt = now
	s.resetSoft(now)
}

// resetSoft closes the transport and returns to StateClosed, leaving
// the scheduler to reopen it on the next poll. A name distinct from a
// theoretical harder reset exists because the original controller code
// distinguished the two; this relay only implements the soft path, and
// treats repeated soft resets as sufficient.
func (s *Session) resetSoft(now time.Time) {
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
	s.parser.Reset()
	s.state = StateClosed
	s.havePosition = false
	s.fcInfo = msp.FcInfo{}
}
