package link

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stewlg/craftrelay/internal/craft"
	"github.com/stewlg/craftrelay/internal/fakeport"
	"github.com/stewlg/craftrelay/internal/msp"
)

func feedBytes(t *testing.T, s *Session, data []byte, now time.Time) {
	t.Helper()
	for _, b := range data {
		require.NoError(t, s.Feed(b, now))
	}
}

func newTestSession(t *testing.T) (*Session, *fakeport.Port) {
	t.Helper()
	s := New("com-test", 4000, false, zerolog.Nop())
	p := fakeport.New()
	now := time.Now()
	require.NoError(t, s.Open(p, now))
	return s, p
}

func TestOpenRequestsIdentity(t *testing.T) {
	s, p := newTestSession(t)
	require.Equal(t, StateOpened, s.State())

	written := p.Written()
	require.NotEmpty(t, written)

	for _, id := range []msp.ID{msp.IDApiVersion, msp.IDFcVariant, msp.IDName, msp.IDUid} {
		expected := msp.EncodeRequest(id)
		require.Contains(t, string(written), string(expected))
	}
}

func driveIdentityDiscovery(t *testing.T, s *Session, now time.Time) {
	t.Helper()
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDApiVersion, []byte{0, 2, 3}), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDFcVariant, []byte("INAV")), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDName, []byte("Phoenix-1")), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDUid, msp.EncodeUID(msp.UIDWord{Word0: 1, Word1: 2, Word2: 3})), now)
}

func TestIdentityDiscoveryGatesRunningState(t *testing.T) {
	s, _ := newTestSession(t)
	now := time.Now()

	driveIdentityDiscovery(t, s, now)
	require.Equal(t, StateOpened, s.State(), "should be waiting on other-craft-position-setting query")

	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{1}), now)
	require.Equal(t, StateRunning, s.State())
}

func TestIdentityDiscoverySkipsSettingQueryOnOldApi(t *testing.T) {
	s, _ := newTestSession(t)
	now := time.Now()

	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDApiVersion, []byte{0, 2, 2}), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDFcVariant, []byte("INAV")), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDName, []byte("Phoenix-1")), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDUid, msp.EncodeUID(msp.UIDWord{Word0: 1})), now)

	require.Equal(t, StateRunning, s.State())
}

func TestGpsUpdatesLastKnownPosition(t *testing.T) {
	s, _ := newTestSession(t)
	now := time.Now()
	driveIdentityDiscovery(t, s, now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{1}), now)

	_, ok, _ := s.LastKnownPosition(now)
	require.False(t, ok)

	gps := craft.RawGps{Fix: craft.Fix3D, MspLat: 10, MspLon: 20, CourseDecideg: 90}
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDRawGps, msp.EncodeRawGps(gps)), now)

	pos, ok, stale := s.LastKnownPosition(now)
	require.True(t, ok)
	require.False(t, stale)
	require.EqualValues(t, 10, pos.MspLat)
	require.Equal(t, "Phoenix-1", pos.CraftName)
}

func TestLastKnownPositionGoesStale(t *testing.T) {
	s, _ := newTestSession(t)
	now := time.Now()
	driveIdentityDiscovery(t, s, now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{1}), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDRawGps, msp.EncodeRawGps(craft.RawGps{})), now)

	_, _, stale := s.LastKnownPosition(now.Add(1 * time.Second))
	require.False(t, stale)

	_, _, stale = s.LastKnownPosition(now.Add(5 * time.Second))
	require.True(t, stale)
}

func TestZeroStaleIntervalNeverStales(t *testing.T) {
	s := New("com-test", 0, false, zerolog.Nop())
	p := fakeport.New()
	now := time.Now()
	require.NoError(t, s.Open(p, now))
	driveIdentityDiscovery(t, s, now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{1}), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDRawGps, msp.EncodeRawGps(craft.RawGps{})), now)

	_, _, stale := s.LastKnownPosition(now.Add(24 * time.Hour))
	require.False(t, stale)
}

func TestWatchdogResetsWithoutGps(t *testing.T) {
	s, p := newTestSession(t)
	now := time.Now()

	s.CheckWatchdog(now.Add(10 * time.Second))
	require.Equal(t, StateOpened, s.State())

	s.CheckWatchdog(now.Add(16 * time.Second))
	require.Equal(t, StateClosed, s.State())

	// Port must have been closed as part of the reset.
	_, err := p.Write([]byte{0})
	require.Error(t, err)
}

func TestWatchdogExitsInsteadOfResettingWhenConfigured(t *testing.T) {
	s := New("com-test", 4000, true, zerolog.Nop())
	p := fakeport.New()
	now := time.Now()
	require.NoError(t, s.Open(p, now))

	exited := false
	s.SetExitHandler(func(*Session) { exited = true })

	s.CheckWatchdog(now.Add(16 * time.Second))
	require.True(t, exited)
	require.Equal(t, StateOpened, s.State(), "exit handler owns shutdown, session state left untouched")
}

func TestMalformedFrameDoesNotDestabilizeSession(t *testing.T) {
	s, _ := newTestSession(t)
	now := time.Now()

	require.NoError(t, s.Feed('%', now))
	require.Equal(t, StateOpened, s.State())

	driveIdentityDiscovery(t, s, now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{1}), now)
	require.Equal(t, StateRunning, s.State())
}

func TestSendCraftPosition(t *testing.T) {
	s, p := newTestSession(t)
	p.ResetWritten()

	info := craft.CraftInfoAndPosition{UID: craft.UID{Word0: 9}, CraftName: "Wingman"}
	require.NoError(t, s.SendCraftPosition(info))

	written := p.Written()
	require.NotEmpty(t, written)
	require.Contains(t, string(written), "Wingman")
	require.Equal(t, byte(msp.DirToController), written[2], "relay-emitted frames are sent ground-to-controller")
}

func TestRequestMissingIdentityRetriesUnansweredFields(t *testing.T) {
	s, p := newTestSession(t)
	now := time.Now()

	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDApiVersion, []byte{0, 2, 3}), now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDFcVariant, []byte("INAV")), now)
	require.Equal(t, StateOpened, s.State())

	p.ResetWritten()
	require.NoError(t, s.RequestMissingIdentity())

	written := p.Written()
	require.Contains(t, string(written), string(msp.EncodeRequest(msp.IDName)), "name was never answered, should be re-requested")
	require.Contains(t, string(written), string(msp.EncodeRequest(msp.IDUid)), "uid was never answered, should be re-requested")
	require.NotContains(t, string(written), string(msp.EncodeRequest(msp.IDApiVersion)), "api version already discovered, should not be re-requested")
	require.NotContains(t, string(written), string(msp.EncodeRequest(msp.IDFcVariant)), "variant already discovered, should not be re-requested")
}

func TestRequestMissingIdentityQueriesOtherCraftSettingOnceApiKnown(t *testing.T) {
	s, p := newTestSession(t)
	now := time.Now()
	driveIdentityDiscovery(t, s, now)
	require.Equal(t, StateOpened, s.State(), "waiting on other-craft-position-setting query")

	p.ResetWritten()
	require.NoError(t, s.RequestMissingIdentity())

	written := p.Written()
	require.Contains(t, string(written), string(msp.EncodeFrame(msp.DirToController, msp.IDOtherCraftPositionSetting, msp.EncodeOtherCraftPositionSettingQuery())))
}

func TestGpsUpdateLogsThroughPositionRedactor(t *testing.T) {
	var buf bytes.Buffer
	s := New("com-test", 4000, false, zerolog.New(&buf).Level(zerolog.DebugLevel))
	p := fakeport.New()
	now := time.Now()
	require.NoError(t, s.Open(p, now))
	s.SetPositionRedactor(func(latDeg, lonDeg float64) string { return "REDACTED" })

	driveIdentityDiscovery(t, s, now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{1}), now)
	gps := craft.RawGps{Fix: craft.Fix3D, MspLat: 10, MspLon: 20, CourseDecideg: 90}
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDRawGps, msp.EncodeRawGps(gps)), now)

	require.Contains(t, buf.String(), "REDACTED")
}

func TestRequestMissingIdentityNoOpOnceRunning(t *testing.T) {
	s, p := newTestSession(t)
	now := time.Now()
	driveIdentityDiscovery(t, s, now)
	feedBytes(t, s, msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{1}), now)
	require.Equal(t, StateRunning, s.State())

	p.ResetWritten()
	require.NoError(t, s.RequestMissingIdentity())
	require.Empty(t, p.Written())
}
