// Command mockfc simulates an MSP V2 flight controller for exercising
// craftrelay without real hardware: it answers identity queries, feeds
// a moving simulated GPS fix, and logs any other-craft positions the
// relay forwards to it.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stewlg/craftrelay/internal/craft"
	"github.com/stewlg/craftrelay/internal/msp"
)

// simCraft is one simulated aircraft's moving state.
type simCraft struct {
	name       string
	uid        msp.UIDWord
	apiMajor   uint8
	apiMinor   uint8
	wantsOther bool

	mu          sync.Mutex
	latDeg      float64
	lonDeg      float64
	altMeters   int16
	speedKnots  uint16
	headingDeg  float64
	climbPerSec float64
	lastTick    time.Time
}

func newSimCraft(name string, latDeg, lonDeg float64, altMeters int16, headingDeg float64, speedKnots uint16) *simCraft {
	return &simCraft{
		name:       name,
		uid:        msp.UIDWord{Word0: rand.Uint32(), Word1: rand.Uint32(), Word2: rand.Uint32()},
		apiMajor:   2,
		apiMinor:   3,
		wantsOther: true,
		latDeg:     latDeg,
		lonDeg:     lonDeg,
		altMeters:  altMeters,
		speedKnots: speedKnots,
		headingDeg: headingDeg,
		lastTick:   time.Now(),
	}
}

// advance moves the craft forward along its heading by however long has
// elapsed since the last call.
func (c *simCraft) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.lastTick).Seconds()
	c.lastTick = now

	distanceNM := float64(c.speedKnots) * elapsed / 3600.0
	headingRad := c.headingDeg * math.Pi / 180.0
	latFactor := math.Cos(c.latDeg * math.Pi / 180.0)
	if latFactor == 0 {
		latFactor = 1
	}
	c.lonDeg += (distanceNM * math.Sin(headingRad)) / (60.0 * latFactor)
	c.latDeg += (distanceNM * math.Cos(headingRad)) / 60.0
}

func (c *simCraft) rawGps() craft.RawGps {
	c.mu.Lock()
	defer c.mu.Unlock()
	return craft.RawGps{
		Fix:            craft.Fix3D,
		NumSat:         14,
		MspLat:         int32(c.latDeg * 1e7),
		MspLon:         int32(c.lonDeg * 1e7),
		AltitudeMeters: uint16(c.altMeters),
		Speed:          c.speedKnots,
		CourseDecideg:  uint16(math.Mod(c.headingDeg, 360) * 10),
	}
}

// session drives one connected client socket through the same MSP V2
// exchange a real flight controller would: answering identity queries
// and GPS polls, and logging any craft positions pushed to it.
type session struct {
	conn   net.Conn
	craft  *simCraft
	parser *msp.Parser
}

func (s *session) send(data []byte) {
	if _, err := s.conn.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "mockfc: write to %s failed: %v\n", s.conn.RemoteAddr(), err)
	}
}

func (s *session) handleFrame(frame msp.Frame) {
	switch frame.ID {
	case msp.IDApiVersion:
		s.send(msp.EncodeFrame(msp.DirFromController, msp.IDApiVersion, []byte{0, s.craft.apiMajor, s.craft.apiMinor}))
	case msp.IDFcVariant:
		s.send(msp.EncodeFrame(msp.DirFromController, msp.IDFcVariant, []byte("INAV")))
	case msp.IDName:
		s.send(msp.EncodeFrame(msp.DirFromController, msp.IDName, []byte(s.craft.name)))
	case msp.IDUid:
		s.send(msp.EncodeFrame(msp.DirFromController, msp.IDUid, msp.EncodeUID(s.craft.uid)))
	case msp.IDOtherCraftPositionSetting:
		want := byte(0)
		if s.craft.wantsOther {
			want = 1
		}
		s.send(msp.EncodeFrame(msp.DirFromController, msp.IDOtherCraftPositionSetting, []byte{want}))
	case msp.IDRawGps:
		s.send(msp.EncodeFrame(msp.DirFromController, msp.IDRawGps, msp.EncodeRawGps(s.craft.rawGps())))
	case msp.IDOtherCraftPosition:
		info, err := msp.DecodeOtherCraftPosition(frame.Payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mockfc: bad other-craft-position payload: %v\n", err)
			return
		}
		fmt.Printf("%s received craft position: %s at %d,%d alt=%d\n",
			s.craft.name, info.CraftName, info.MspLat, info.MspLon, info.AltMeters)
	default:
		// unhandled ground-to-controller message, ignore.
	}
}

func (s *session) run() {
	defer s.conn.Close()
	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			fmt.Printf("mockfc: %s disconnected: %v\n", s.conn.RemoteAddr(), err)
			return
		}
		for i := 0; i < n; i++ {
			frame, err := s.parser.Feed(buf[i])
			if err != nil {
				continue
			}
			if frame != nil {
				s.handleFrame(*frame)
			}
		}
	}
}

func main() {
	addr := flag.String("listen", "127.0.0.1:19200", "TCP address to listen on, standing in for a serial port")
	name := flag.String("name", "Mock-1", "Simulated craft name")
	lat := flag.Float64("lat", 39.4907560, "Initial latitude")
	lon := flag.Float64("lon", -105.0815770, "Initial longitude")
	alt := flag.Int("alt", 100, "Initial altitude in meters")
	heading := flag.Float64("heading", 90, "Initial heading in degrees")
	speed := flag.Uint("speed", 20, "Ground speed in knots")
	flag.Parse()

	rand.Seed(time.Now().UnixNano())

	aircraft := newSimCraft(*name, *lat, *lon, int16(*alt), *heading, uint16(*speed))

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mockfc: failed to listen on %s: %v\n", *addr, err)
		os.Exit(1)
	}
	fmt.Printf("mockfc: simulating %q on %s\n", *name, *addr)

	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			aircraft.advance()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nmockfc: shutting down")
		listener.Close()
		os.Exit(0)
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mockfc: accept failed: %v\n", err)
			return
		}
		fmt.Printf("mockfc: relay connected from %s\n", conn.RemoteAddr())
		s := &session{conn: conn, craft: aircraft, parser: msp.NewParser(*addr)}
		go s.run()
	}
}
