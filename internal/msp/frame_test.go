package msp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stewlg/craftrelay/internal/relayerr"
)

func feedAll(t *testing.T, p *Parser, data []byte) (*Frame, error) {
	t.Helper()
	for i, b := range data {
		frame, err := p.Feed(b)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			require.Equal(t, len(data)-1, i, "frame completed before all bytes consumed")
			return frame, nil
		}
	}
	return nil, nil
}

func TestParserRoundTripEmptyPayload(t *testing.T) {
	raw := EncodeFrame(DirToController, IDApiVersion, nil)
	p := NewParser("com1")
	frame, err := feedAll(t, p, raw)
	require.NoError(t, err)
	require.NotNil(t, frame)
	require.Equal(t, DirToController, frame.Direction)
	require.Equal(t, IDApiVersion, frame.ID)
	require.Empty(t, frame.Payload)
}

func TestParserRoundTripWithPayload(t *testing.T) {
	payload := EncodeOtherCraftPositionSettingQuery()
	raw := EncodeFrame(DirFromController, IDOtherCraftPositionSetting, payload)
	p := NewParser("com1")
	frame, err := feedAll(t, p, raw)
	require.NoError(t, err)
	require.NotNil(t, frame)
	require.Equal(t, payload, frame.Payload)
}

func TestParserRejectsBadPreamble(t *testing.T) {
	p := NewParser("com1")
	_, err := p.Feed('%')
	require.Error(t, err)
	var relayErr *relayerr.Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, relayerr.KindFraming, relayErr.Kind)
}

func TestParserRejectsCRCMismatch(t *testing.T) {
	raw := EncodeFrame(DirToController, IDApiVersion, []byte{0, 2, 3})
	raw[len(raw)-1] ^= 0xFF

	p := NewParser("com1")
	_, err := feedAll(t, p, raw)
	require.Error(t, err)
	require.True(t, err.(*relayerr.Error).Kind == relayerr.KindFraming)
}

func TestParserResetsAfterError(t *testing.T) {
	p := NewParser("com1")
	_, err := p.Feed('%')
	require.Error(t, err)

	raw := EncodeFrame(DirToController, IDApiVersion, nil)
	frame, err := feedAll(t, p, raw)
	require.NoError(t, err)
	require.NotNil(t, frame)
}

func TestParserErrorDirectionFrame(t *testing.T) {
	raw := EncodeFrame(DirError, IDApiVersion, nil)
	p := NewParser("com1")
	_, err := feedAll(t, p, raw)
	require.Error(t, err)
	var relayErr *relayerr.Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, relayerr.KindFraming, relayErr.Kind)
	require.EqualValues(t, IDApiVersion, relayErr.MsgID)
}
