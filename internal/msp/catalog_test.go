package msp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stewlg/craftrelay/internal/craft"
)

func TestDecodeApiVersion(t *testing.T) {
	v, err := DecodeApiVersion([]byte{0, 2, 5})
	require.NoError(t, err)
	require.Equal(t, ApiVersion{Protocol: 0, Major: 2, Minor: 5}, v)

	_, err = DecodeApiVersion([]byte{0, 2})
	require.Error(t, err)
}

func TestDecodeFcVariantAndName(t *testing.T) {
	require.Equal(t, "INAV", DecodeFcVariant([]byte("INAV")))
	require.Equal(t, "Phoenix-1", DecodeName([]byte("Phoenix-1")))
}

func TestUIDRoundTrip(t *testing.T) {
	u := UIDWord{Word0: 0xAABBCCDD, Word1: 1, Word2: 2}
	got, err := DecodeUID(EncodeUID(u))
	require.NoError(t, err)
	require.Equal(t, u, got)

	_, err = DecodeUID([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestOtherCraftPositionSettingRoundTrip(t *testing.T) {
	want, err := DecodeOtherCraftPositionSetting([]byte{1})
	require.NoError(t, err)
	require.True(t, want)

	query := EncodeOtherCraftPositionSettingQuery()
	require.Equal(t, []byte{0}, query)

	_, err = DecodeOtherCraftPositionSetting([]byte{})
	require.Error(t, err)
}

func TestRawGpsRoundTrip(t *testing.T) {
	gps := craft.RawGps{
		Fix:            craft.Fix3D,
		NumSat:         12,
		MspLat:         394907560,
		MspLon:         -1050815770,
		AltitudeMeters: 150,
		Speed:          30,
		CourseDecideg:  900,
		HDOP:           120,
	}
	encoded := EncodeRawGps(gps)
	require.Len(t, encoded, rawGpsPayloadLen)

	decoded, err := DecodeRawGps(encoded)
	require.NoError(t, err)
	require.Equal(t, gps, decoded)

	_, err = DecodeRawGps(encoded[:10])
	require.Error(t, err)
}

func TestOtherCraftPositionRoundTrip(t *testing.T) {
	info := craft.CraftInfoAndPosition{
		UID:           craft.UID{Word0: 1, Word1: 2, Word2: 3},
		Fix:           craft.Fix3D,
		NumSat:        50,
		MspLat:        394907560,
		MspLon:        -1050815770,
		AltMeters:     100,
		Speed:         5,
		CourseDecideg: 450,
		CraftName:     "Wingman-North",
	}
	encoded := EncodeOtherCraftPosition(info)
	require.Len(t, encoded, craftInfoAndPositionFixedLen+len(info.CraftName))

	decoded, err := DecodeOtherCraftPosition(encoded)
	require.NoError(t, err)
	require.Equal(t, info, decoded)
}

func TestOtherCraftPositionRejectsShortPayload(t *testing.T) {
	_, err := DecodeOtherCraftPosition(make([]byte, craftInfoAndPositionFixedLen-1))
	require.Error(t, err)
}

func TestOtherCraftPositionEmptyName(t *testing.T) {
	info := craft.CraftInfoAndPosition{UID: craft.UID{Word0: 1}}
	decoded, err := DecodeOtherCraftPosition(EncodeOtherCraftPosition(info))
	require.NoError(t, err)
	require.Equal(t, "", decoded.CraftName)
}
