package craft

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stewlg/craftrelay/internal/geo"
)

// PhantomKind tags which variant a PhantomCraft is. Phantom craft are
// modeled as a single tagged-variant type rather than an interface
// hierarchy with virtual dispatch: one struct, one kind tag, and
// CurrentPosition/Eligible switch on it.
type PhantomKind int

const (
	PhantomFixed PhantomKind = iota
	PhantomWingman
)

func (k PhantomKind) String() string {
	if k == PhantomWingman {
		return "wingman"
	}
	return "fixed"
}

// PhantomCraft is a synthetic traffic source injected by the relay for
// loopback testing. Fixed craft always report the same
// configured position; Wingman craft track a real craft's position at
// a configured bearing/distance/altitude offset, and go ineligible
// when they have no reference yet or the reference has gone stale.
type PhantomCraft struct {
	Kind PhantomKind
	UID  UID
	Name string

	// Fixed fields.
	fixedPos           geo.Point
	fixedAltMeters     int16
	fixedCourseDecideg uint16

	// Wingman fields.
	targetPort        string
	bearingOffsetDeg  float64
	distanceMeters    float64
	relativeAltMeters int16
	lastRef           *CraftInfoAndPosition
	refStale          bool
}

// phantomUID derives a stable UID triple for a phantom craft from its
// configured name, so its identity survives a relay restart without
// needing a real controller-reported MSP_UID. Grounded on
// github.com/google/uuid (seen in viamrobotics-rdk's dependency set).
func phantomUID(name string) UID {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("craftrelay-phantom:"+name))
	b := id[:]
	return UID{
		Word0: u32be(b[0:4]),
		Word1: u32be(b[4:8]),
		Word2: u32be(b[8:12]),
	}
}

func u32be(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// NewFixed builds an always-eligible phantom craft with a fixed position.
func NewFixed(name string, pos geo.Point, altMeters int16, courseDecideg uint16) *PhantomCraft {
	return &PhantomCraft{
		Kind:               PhantomFixed,
		UID:                phantomUID(name),
		Name:               name,
		fixedPos:           pos,
		fixedAltMeters:     altMeters,
		fixedCourseDecideg: courseDecideg,
	}
}

// NewWingman builds a phantom craft that tracks a reference craft's
// position offset by bearing/distance/altitude. targetPort is either a
// configured serial port name or the literal "all" (case-insensitive),
// matching any port.
func NewWingman(name, targetPort string, bearingOffsetDeg, distanceMeters float64, relativeAltMeters int16) *PhantomCraft {
	return &PhantomCraft{
		Kind:              PhantomWingman,
		UID:               phantomUID(name),
		Name:              name,
		targetPort:        targetPort,
		bearingOffsetDeg:  bearingOffsetDeg,
		distanceMeters:    distanceMeters,
		relativeAltMeters: relativeAltMeters,
		refStale:          true,
	}
}

// TargetPort returns the configured target port for a Wingman craft
// ("" for Fixed craft, which have no port affiliation).
func (p *PhantomCraft) TargetPort() string {
	return p.targetPort
}

// UpdateReference records the latest snapshot of the craft a Wingman
// tracks. It is a no-op for Fixed craft, which ignore reference updates
// entirely.
func (p *PhantomCraft) UpdateReference(ref CraftInfoAndPosition, stale bool) {
	if p.Kind != PhantomWingman {
		return
	}
	refCopy := ref
	p.lastRef = &refCopy
	p.refStale = stale
}

// Eligible reports whether this craft may be sent to portName right
// now, with a human-readable reason either way.
func (p *PhantomCraft) Eligible(portName string) (bool, string) {
	switch p.Kind {
	case PhantomFixed:
		return true, "fixed craft are always eligible"
	case PhantomWingman:
		matches := strings.EqualFold(portName, p.targetPort) || strings.EqualFold(p.targetPort, "all")
		if !matches {
			return false, fmt.Sprintf("wingman target port %q does not match %q", p.targetPort, portName)
		}
		if p.lastRef == nil {
			return false, "wingman reference position never set"
		}
		if p.refStale {
			return false, "wingman reference position is stale"
		}
		return true, "eligible"
	default:
		return false, "unknown phantom kind"
	}
}

// CurrentPosition computes the craft's position to report right now.
// For Wingman craft this recomputes the destination point from the
// latest reference every call, since the reference craft may be
// moving. Callers must check Eligible first: calling this on a Wingman
// that has never had a reference panics rather than returning a garbage
// position, while a Wingman that is ineligible only because its
// reference is stale or its port does not match still returns a
// position computed from the stored reference.
func (p *PhantomCraft) CurrentPosition() CraftInfoAndPosition {
	switch p.Kind {
	case PhantomFixed:
		return CraftInfoAndPosition{
			UID:           p.UID,
			Fix:           Fix3D,
			NumSat:        syntheticSatCount,
			MspLat:        p.fixedPos.MspLat(),
			MspLon:        p.fixedPos.MspLon(),
			AltMeters:     uint16(p.fixedAltMeters),
			Speed:         0,
			CourseDecideg: p.fixedCourseDecideg,
			CraftName:     p.Name,
		}
	case PhantomWingman:
		if p.lastRef == nil {
			panic("craft: CurrentPosition called on wingman with no reference; check Eligible first")
		}
		ref := *p.lastRef
		refCourseDeg := float64(ref.CourseDecideg) / 10
		bearing := geo.NormalizeBearingDeg(refCourseDeg + p.bearingOffsetDeg)
		refPoint := geo.PointFromMsp(ref.MspLat, ref.MspLon)
		dest := geo.Destination(refPoint, bearing, p.distanceMeters)

		// Altitude is transmitted as uint16 but is in fact signed;
		// preserved bit-for-bit rather than clamped.
		refAltSigned := int16(ref.AltMeters)
		destAltSigned := refAltSigned + p.relativeAltMeters

		return CraftInfoAndPosition{
			UID:           p.UID,
			Fix:           Fix3D,
			NumSat:        syntheticSatCount,
			MspLat:        dest.MspLat(),
			MspLon:        dest.MspLon(),
			AltMeters:     uint16(destAltSigned),
			Speed:         ref.Speed,
			CourseDecideg: ref.CourseDecideg,
			CraftName:     p.Name,
		}
	default:
		panic("craft: unknown phantom kind")
	}
}

// Describe formats the craft's configuration for a one-time startup
// log line.
func (p *PhantomCraft) Describe() string {
	switch p.Kind {
	case PhantomFixed:
		return fmt.Sprintf("fixed phantom %q at %.6f,%.6f, alt %dm, course %d decideg",
			p.Name, p.fixedPos.LatDeg, p.fixedPos.LonDeg, p.fixedAltMeters, p.fixedCourseDecideg)
	case PhantomWingman:
		return fmt.Sprintf("wingman phantom %q: port %s, %.1f deg offset, %.1fm distant, %+dm altitude difference",
			p.Name, p.targetPort, p.bearingOffsetDeg, p.distanceMeters, p.relativeAltMeters)
	default:
		return fmt.Sprintf("phantom %q: unknown kind", p.Name)
	}
}
