package msp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupportsRelay(t *testing.T) {
	require.False(t, ApiVersion{Protocol: 0, Major: 2, Minor: 2}.SupportsRelay())
	require.True(t, ApiVersion{Protocol: 0, Major: 2, Minor: 3}.SupportsRelay())
	require.True(t, ApiVersion{Protocol: 0, Major: 2, Minor: 9}.SupportsRelay())
	require.True(t, ApiVersion{Protocol: 0, Major: 3, Minor: 0}.SupportsRelay())
	require.False(t, ApiVersion{Protocol: 1, Major: 2, Minor: 3}.SupportsRelay())
}

func TestAllRequiredDiscoveredBeforeOldApiKnown(t *testing.T) {
	var f FcInfo
	require.False(t, f.AllRequiredDiscovered())

	f.VariantSet = true
	f.UIDSet = true
	f.ApiVerSet = true
	f.CraftNameSet = true
	f.ApiVer = ApiVersion{Protocol: 0, Major: 2, Minor: 2}
	require.True(t, f.AllRequiredDiscovered())
}

func TestAllRequiredDiscoveredWaitsForOtherCraftSettingOnNewApi(t *testing.T) {
	f := FcInfo{
		VariantSet:   true,
		UIDSet:       true,
		ApiVerSet:    true,
		CraftNameSet: true,
		ApiVer:       ApiVersion{Protocol: 0, Major: 2, Minor: 3},
	}
	require.False(t, f.AllRequiredDiscovered())

	f.WantsOtherCraftSet = true
	require.True(t, f.AllRequiredDiscovered())
}

func TestAllRequiredDiscoveredMissingAnyField(t *testing.T) {
	base := FcInfo{
		VariantSet:   true,
		UIDSet:       true,
		ApiVerSet:    true,
		CraftNameSet: true,
	}
	require.True(t, base.AllRequiredDiscovered())

	missingVariant := base
	missingVariant.VariantSet = false
	require.False(t, missingVariant.AllRequiredDiscovered())

	missingUID := base
	missingUID.UIDSet = false
	require.False(t, missingUID.AllRequiredDiscovered())

	missingName := base
	missingName.CraftNameSet = false
	require.False(t, missingName.AllRequiredDiscovered())
}
