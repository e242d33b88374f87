// Package craft holds the plain data types exchanged between aircraft
// (RawGps, CraftInfoAndPosition) and the phantom craft position
// synthesis built on top of them.
package craft

// FixType is the GPS fix quality reported by MSP_RAW_GPS.
type FixType uint8

const (
	FixNone FixType = 0
	Fix2D   FixType = 1
	Fix3D   FixType = 2
)

func (f FixType) String() string {
	switch f {
	case FixNone:
		return "no-fix"
	case Fix2D:
		return "2d"
	case Fix3D:
		return "3d"
	default:
		return "unknown-fix"
	}
}

// syntheticSatCount is the sentinel satellite count phantom craft
// report, high enough that an operator glancing at a traffic display
// can tell the fix is synthetic.
const syntheticSatCount = 50

// RawGps is the decoded payload of MSP_RAW_GPS. Altitude,
// lat and lon are carried as their wire bit patterns: MSP transports
// altitude as uint16 even though flight controllers treat it as a
// signed int16, and lat/lon as unsigned bit patterns of a signed
// MSP-native value. This type preserves those bits exactly; callers
// that need the signed interpretation cast explicitly (see
// AltitudeSigned).
type RawGps struct {
	Fix            FixType
	NumSat         uint8
	MspLat         int32
	MspLon         int32
	AltitudeMeters uint16
	Speed          uint16
	CourseDecideg  uint16
	HDOP           uint16
}

// AltitudeSigned reinterprets the wire altitude as signed, which is
// how flight controllers populate it. Preserved bit-for-bit rather than
// clamped, since the true wire contract for negative altitudes is
// unconfirmed.
func (g RawGps) AltitudeSigned() int16 {
	return int16(g.AltitudeMeters)
}

// Valid reports whether the fix is well formed: course in [0, 3600)
// and fix type in {0,1,2}.
func (g RawGps) Valid() bool {
	if g.CourseDecideg >= 3600 {
		return false
	}
	switch g.Fix {
	case FixNone, Fix2D, Fix3D:
	default:
		return false
	}
	return true
}

// UID is the three-word flight controller unique identifier reported
// by MSP_UID.
type UID struct {
	Word0, Word1, Word2 uint32
}

// CraftInfoAndPosition is the unit of information forwarded between
// aircraft: one craft's identity plus its most recent
// position. The wire encoding lives in internal/msp, which is the
// layer that knows about frames; this package only owns the data.
type CraftInfoAndPosition struct {
	UID           UID
	Fix           FixType
	NumSat        uint8
	MspLat        int32
	MspLon        int32
	AltMeters     uint16
	Speed         uint16
	CourseDecideg uint16
	CraftName     string
}

// FromRawGps builds a CraftInfoAndPosition snapshot from a link's
// identity and its last-known fix.
func FromRawGps(uid UID, craftName string, gps RawGps) CraftInfoAndPosition {
	return CraftInfoAndPosition{
		UID:           uid,
		Fix:           gps.Fix,
		NumSat:        gps.NumSat,
		MspLat:        gps.MspLat,
		MspLon:        gps.MspLon,
		AltMeters:     gps.AltitudeMeters,
		Speed:         gps.Speed,
		CourseDecideg: gps.CourseDecideg,
		CraftName:     craftName,
	}
}
