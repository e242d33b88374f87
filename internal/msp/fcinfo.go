package msp

// ApiVersion is the decoded MSP_API_VERSION payload.
type ApiVersion struct {
	Protocol uint8
	Major    uint8
	Minor    uint8
}

// SupportsRelay reports whether this api version is recent enough to
// enable the other-craft-position relay messages: protocol zero,
// major.minor >= 2.3.
func (v ApiVersion) SupportsRelay() bool {
	if v.Protocol != 0 {
		return false
	}
	if v.Major != 2 {
		return v.Major > 2
	}
	return v.Minor >= 3
}

// FcInfo is the immutable-after-discovery identity of a link, with
// per-attribute discovered flags.
type FcInfo struct {
	Variant            string
	VariantSet         bool
	UID                UIDWord
	UIDSet             bool
	ApiVer             ApiVersion
	ApiVerSet          bool
	CraftName          string
	CraftNameSet       bool
	WantsOtherCraft    bool
	WantsOtherCraftSet bool
}

// UIDWord is the three-word MSP unique identifier, duplicated here
// (rather than importing craft.UID) so this package has no dependency
// on internal/craft for identity alone; the message catalog converts
// to craft.UID only where a full CraftInfoAndPosition is built.
type UIDWord struct {
	Word0, Word1, Word2 uint32
}

// AllRequiredDiscovered reports whether identity discovery on this link
// is complete: variant, uid, api-version and craft-name must all be
// discovered, and once api-version >= 2.3 is known, the
// other-craft-position setting must also have been observed.
func (f FcInfo) AllRequiredDiscovered() bool {
	if !f.VariantSet || !f.UIDSet || !f.ApiVerSet || !f.CraftNameSet {
		return false
	}
	if f.ApiVer.SupportsRelay() && !f.WantsOtherCraftSet {
		return false
	}
	return true
}
