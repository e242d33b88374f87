package msp

// ID is an MSP message id. The relay only needs a handful of the full
// MSP/INAV catalog; the constants below are named after the full set
// but only the ones this package actively decodes have typed codecs.
type ID uint16

const (
	IDApiVersion ID = 1
	IDFcVariant  ID = 2

	IDName ID = 10

	IDUid ID = 160

	IDRawGps ID = 106

	IDOtherCraftPositionSetting ID = 0x201A
	IDOtherCraftPosition        ID = 0x201B
)

func (id ID) String() string {
	switch id {
	case IDApiVersion:
		return "MSP_API_VERSION"
	case IDFcVariant:
		return "MSP_FC_VARIANT"
	case IDName:
		return "MSP_NAME"
	case IDUid:
		return "MSP_UID"
	case IDRawGps:
		return "MSP_RAW_GPS"
	case IDOtherCraftPositionSetting:
		return "MSP2_INAV_OTHER_CRAFT_POSITION_SETTING"
	case IDOtherCraftPosition:
		return "MSP2_INAV_OTHER_CRAFT_POSITION"
	default:
		return "MSP_UNKNOWN"
	}
}
