package protocol_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meltwater/hbase-scripts/protocol"
)

func TestRequest_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		hs          protocol.Handshake
		wantWire    string
		wantVersion int
	}{
		{
			name:        "with version",
			hs:          protocol.WithVersion,
			wantWire:    "100\n110\nPROTOCOL 1\n",
			wantVersion: 1,
		},
		{
			name:        "legacy",
			hs:          protocol.Legacy,
			wantWire:    "100\n110\n",
			wantVersion: 0,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// --- given ---
			var buf bytes.Buffer
			req := protocol.NewRangeRequest(100, 10)

			// --- when ---
			require.Nil(t, protocol.WriteRequest(protocol.NewEncoder(&buf), req, 1, tt.hs))
			assert.Equal(t, tt.wantWire, buf.String())
			got, version, err := protocol.ReadRequest(protocol.NewDecoder(&buf), tt.hs)

			// --- then ---
			require.Nil(t, err)
			assert.Equal(t, req, got)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestReadRequest_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wire string
	}{
		{name: "not a number", wire: "yesterday\n110\n"},
		{name: "bad version line", wire: "100\n110\nVERSION 1\n"},
		{name: "bad version number", wire: "100\n110\nPROTOCOL one\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := protocol.ReadRequest(protocol.NewDecoder(strings.NewReader(tt.wire)), protocol.WithVersion)
			assert.True(t, errors.Is(err, protocol.ErrMalformedRequest), "got %v", err)
		})
	}
}

func TestReadRequest_ToleratesCarriageReturn(t *testing.T) {
	t.Parallel()

	req, _, err := protocol.ReadRequest(protocol.NewDecoder(strings.NewReader("100\r\n110\r\n")), protocol.Legacy)
	require.Nil(t, err)
	assert.Equal(t, protocol.RangeRequest{Start: 100, End: 110}, req)
}
