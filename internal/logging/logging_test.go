package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactedLatLonPassesThroughWhenDisabled(t *testing.T) {
	s := &Set{omitPos: false}
	require.Equal(t, "39.49075600, -105.08157700", s.RedactedLatLon(39.490756, -105.081577))
}

func TestRedactedLatLonHidesNonZeroPosition(t *testing.T) {
	s := &Set{omitPos: true}
	require.Equal(t, "XX.XXXX, YY.YYYY", s.RedactedLatLon(39.490756, -105.081577))
}

func TestRedactedLatLonShowsUnfixedZeroPositionEvenWhenRedacting(t *testing.T) {
	s := &Set{omitPos: true}
	require.Equal(t, "0.00000000, 0.00000000", s.RedactedLatLon(0, 0))
}
