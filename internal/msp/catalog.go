package msp

import (
	"github.com/stewlg/craftrelay/internal/codec"
	"github.com/stewlg/craftrelay/internal/craft"
	"github.com/stewlg/craftrelay/internal/relayerr"
)

// EncodeFrame serializes a complete MSP V2 frame: preamble, direction,
// zero flag, id, length, payload, and trailing CRC-8/DVB-S2.
func EncodeFrame(direction Direction, id ID, payload []byte) []byte {
	buf := codec.NewBuffer(9 + len(payload))
	buf.WriteU8('$')
	buf.WriteU8('X')
	buf.WriteU8(byte(direction))
	buf.WriteU8(0x00)
	buf.WriteU8(byte(uint16(id)))
	buf.WriteU8(byte(uint16(id) >> 8))
	buf.WriteU8(byte(len(payload)))
	buf.WriteU8(byte(len(payload) >> 8))
	buf.WriteBytes(payload)

	crc := uint8(0)
	crc = codec.CRC8DVBS2Update(crc, 0x00)
	crc = codec.CRC8DVBS2Update(crc, byte(uint16(id)))
	crc = codec.CRC8DVBS2Update(crc, byte(uint16(id)>>8))
	crc = codec.CRC8DVBS2Update(crc, byte(len(payload)))
	crc = codec.CRC8DVBS2Update(crc, byte(len(payload)>>8))
	for _, b := range payload {
		crc = codec.CRC8DVBS2Update(crc, b)
	}
	buf.WriteU8(crc)

	return buf.Bytes()
}

// EncodeRequest builds the ground-to-controller query frame for a
// message that takes no payload (ApiVersion, FcVariant, Name, Uid).
func EncodeRequest(id ID) []byte {
	return EncodeFrame(DirToController, id, nil)
}

// DecodeApiVersion decodes an MSP_API_VERSION payload (3 bytes:
// protocol, major, minor).
func DecodeApiVersion(payload []byte) (ApiVersion, error) {
	if len(payload) != 3 {
		return ApiVersion{}, relayerr.Framing("", "MSP_API_VERSION payload must be 3 bytes", nil)
	}
	return ApiVersion{Protocol: payload[0], Major: payload[1], Minor: payload[2]}, nil
}

// DecodeFcVariant decodes an MSP_FC_VARIANT payload, conventionally 4
// ASCII bytes but accepted as any length.
func DecodeFcVariant(payload []byte) string {
	return string(payload)
}

// DecodeName decodes an MSP_NAME payload (UTF-8 craft name).
func DecodeName(payload []byte) string {
	return string(payload)
}

// DecodeUID decodes an MSP_UID payload (12 bytes: three little-endian
// uint32 words).
func DecodeUID(payload []byte) (UIDWord, error) {
	if len(payload) != 12 {
		return UIDWord{}, relayerr.Framing("", "MSP_UID payload must be 12 bytes", nil)
	}
	r := codec.NewReader(payload)
	w0, _ := r.ReadU32()
	w1, _ := r.ReadU32()
	w2, _ := r.ReadU32()
	return UIDWord{Word0: w0, Word1: w1, Word2: w2}, nil
}

// EncodeUID encodes an MSP_UID payload, used by the mock flight
// controller tool to answer a ground query.
func EncodeUID(u UIDWord) []byte {
	buf := codec.NewBuffer(12)
	buf.WriteU32(u.Word0)
	buf.WriteU32(u.Word1)
	buf.WriteU32(u.Word2)
	return buf.Bytes()
}

// DecodeOtherCraftPositionSetting decodes the 1-byte boolean flag
// payload: the controller's answer to whether it wants forwarded
// positions.
func DecodeOtherCraftPositionSetting(payload []byte) (bool, error) {
	if len(payload) != 1 {
		return false, relayerr.Framing("", "other-craft-position-setting payload must be 1 byte", nil)
	}
	return payload[0] != 0, nil
}

// EncodeOtherCraftPositionSettingQuery builds the ground's query frame.
// The ground side always sends false for its own wishes when querying:
// this message exists to ask the controller's preference, not to state
// the ground's.
func EncodeOtherCraftPositionSettingQuery() []byte {
	buf := codec.NewBuffer(1)
	buf.WriteU8(0)
	return buf.Bytes()
}

const rawGpsPayloadLen = 18

// DecodeRawGps decodes an MSP_RAW_GPS payload (18 bytes exactly).
func DecodeRawGps(payload []byte) (craft.RawGps, error) {
	if len(payload) != rawGpsPayloadLen {
		return craft.RawGps{}, relayerr.Framing("", "MSP_RAW_GPS payload must be 18 bytes", nil)
	}
	r := codec.NewReader(payload)
	fixByte, _ := r.ReadU8()
	numSat, _ := r.ReadU8()
	lat, _ := r.ReadU32()
	lon, _ := r.ReadU32()
	alt, _ := r.ReadU16()
	speed, _ := r.ReadU16()
	course, _ := r.ReadU16()
	hdop, _ := r.ReadU16()

	gps := craft.RawGps{
		Fix:            craft.FixType(fixByte),
		NumSat:         numSat,
		MspLat:         int32(lat),
		MspLon:         int32(lon),
		AltitudeMeters: alt,
		Speed:          speed,
		CourseDecideg:  course,
		HDOP:           hdop,
	}
	return gps, nil
}

// EncodeRawGps encodes an MSP_RAW_GPS payload, used by the mock flight
// controller tool.
func EncodeRawGps(gps craft.RawGps) []byte {
	buf := codec.NewBuffer(rawGpsPayloadLen)
	buf.WriteU8(uint8(gps.Fix))
	buf.WriteU8(gps.NumSat)
	buf.WriteU32(uint32(gps.MspLat))
	buf.WriteU32(uint32(gps.MspLon))
	buf.WriteU16(gps.AltitudeMeters)
	buf.WriteU16(gps.Speed)
	buf.WriteU16(gps.CourseDecideg)
	buf.WriteU16(gps.HDOP)
	return buf.Bytes()
}

const craftInfoAndPositionFixedLen = 3*4 + 1 + 1 + 4 + 4 + 2 + 2 + 2 // 28 bytes

// EncodeOtherCraftPosition encodes a CraftInfoAndPosition payload:
// a 28-byte fixed prefix followed by the craft name, with no length
// prefix on the name — the reader consumes to end of payload.
func EncodeOtherCraftPosition(info craft.CraftInfoAndPosition) []byte {
	buf := codec.NewBuffer(craftInfoAndPositionFixedLen + len(info.CraftName))
	buf.WriteU32(info.UID.Word0)
	buf.WriteU32(info.UID.Word1)
	buf.WriteU32(info.UID.Word2)
	buf.WriteU8(uint8(info.Fix))
	buf.WriteU8(info.NumSat)
	buf.WriteU32(uint32(info.MspLat))
	buf.WriteU32(uint32(info.MspLon))
	buf.WriteU16(info.AltMeters)
	buf.WriteU16(info.Speed)
	buf.WriteU16(info.CourseDecideg)
	buf.WriteBytes([]byte(info.CraftName))
	return buf.Bytes()
}

// DecodeOtherCraftPosition decodes a CraftInfoAndPosition payload.
func DecodeOtherCraftPosition(payload []byte) (craft.CraftInfoAndPosition, error) {
	if len(payload) < craftInfoAndPositionFixedLen {
		return craft.CraftInfoAndPosition{}, relayerr.Framing("", "other-craft-position payload too short", nil)
	}
	r := codec.NewReader(payload)
	w0, _ := r.ReadU32()
	w1, _ := r.ReadU32()
	w2, _ := r.ReadU32()
	fixByte, _ := r.ReadU8()
	numSat, _ := r.ReadU8()
	lat, _ := r.ReadU32()
	lon, _ := r.ReadU32()
	alt, _ := r.ReadU16()
	speed, _ := r.ReadU16()
	course, _ := r.ReadU16()
	name := string(r.ReadRest())

	return craft.CraftInfoAndPosition{
		UID:           craft.UID{Word0: w0, Word1: w1, Word2: w2},
		Fix:           craft.FixType(fixByte),
		NumSat:        numSat,
		MspLat:        int32(lat),
		MspLon:        int32(lon),
		AltMeters:     alt,
		Speed:         speed,
		CourseDecideg: course,
		CraftName:     name,
	}, nil
}
