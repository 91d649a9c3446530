package protocol_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meltwater/hbase-scripts/protocol"
)

func TestNewSchema(t *testing.T) {
	t.Parallel()

	s, err := protocol.NewSchema(1)
	require.Nil(t, err)

	assert.Equal(t, 1, s.Version())
	assert.Len(t, s.Fields(), 15)
	assert.Equal(t, protocol.RowKeyField, s.Fields()[0])
	assert.Equal(t, 14, s.NumValues())
	assert.Equal(t, protocol.Column{Family: "fm_contents", Qualifier: "bodyText"}, s.FieldsWithFamily()[0])
	assert.Equal(t, "fm_input_info:sentiment", s.FieldsWithFamily()[13].String())
}

func TestNewSchema_UnknownVersion(t *testing.T) {
	t.Parallel()

	_, err := protocol.NewSchema(42)
	assert.True(t, errors.Is(err, protocol.ErrUnknownVersion))
}

func TestProtocolSchema_FieldsAreStable(t *testing.T) {
	t.Parallel()

	// --- given ---
	s, err := protocol.NewSchema(1)
	require.Nil(t, err)
	first := s.Fields()

	// --- when ---
	// callers can not reorder the schema through the returned slices
	first[0], first[1] = first[1], first[0]
	cols := s.FieldsWithFamily()
	cols[0] = protocol.Column{Family: "x", Qualifier: "y"}

	// --- then ---
	assert.Equal(t, protocol.RowKeyField, s.Fields()[0])
	assert.Equal(t, s.Fields(), s.Fields())
	assert.Equal(t, "fm_contents:bodyText", s.FieldsWithFamily()[0].String())
	for i, c := range s.FieldsWithFamily() {
		assert.Equal(t, s.Fields()[i+1], c.String())
	}
}

func TestProtocolSchema_IsCompatible(t *testing.T) {
	t.Parallel()

	s, err := protocol.NewSchema(1)
	require.Nil(t, err)

	assert.True(t, s.IsCompatible(1))
	assert.False(t, s.IsCompatible(0))
	assert.False(t, s.IsCompatible(2))
}
