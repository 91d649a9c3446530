package protocol_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meltwater/hbase-scripts/protocol"
)

func TestEscape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no newline", in: "plain text", want: "plain text"},
		{name: "empty", in: "", want: ""},
		{name: "one newline", in: "line1\nline2", want: "line1<DEADBEEF>>line2"},
		{name: "leading and trailing", in: "\nmid\n", want: "<DEADBEEF>>mid<DEADBEEF>>"},
		{name: "consecutive", in: "a\n\nb", want: "a<DEADBEEF>><DEADBEEF>>b"},
		{name: "carriage return is data", in: "a\r\nb", want: "a\r<DEADBEEF>>b"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := protocol.Escape([]byte(tt.in))
			assert.Equal(t, tt.want, string(got))
			assert.NotContains(t, string(got), "\n")
			assert.Equal(t, tt.in, string(protocol.Unescape(got)))
		})
	}
}

func TestEncoder_WriteRow_RoundTrip(t *testing.T) {
	t.Parallel()

	// --- given ---
	rows := []*protocol.Row{
		{Key: []byte("130000000012345678"), Values: [][]byte{[]byte("line1\nline2"), []byte(""), []byte("x")}},
		{Key: []byte("key\nwith newline"), Values: [][]byte{[]byte("\n"), nil, []byte("tail\n")}},
	}
	var buf bytes.Buffer
	enc := protocol.NewEncoder(&buf)

	// --- when ---
	for _, r := range rows {
		require.Nil(t, enc.WriteRow(r))
	}
	require.Nil(t, enc.Flush())

	// --- then ---
	// one line per key and per value
	assert.Equal(t, 8, strings.Count(buf.String(), "\n"))

	dec := protocol.NewDecoder(&buf)
	for _, want := range rows {
		got, err := dec.ReadRow(3)
		require.Nil(t, err)
		assert.Equal(t, string(want.Key), string(got.Key))
		for i := range want.Values {
			assert.Equal(t, string(want.Values[i]), string(got.Values[i]))
		}
	}
	_, err := dec.ReadRow(3)
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_ReadLine_NoTrailingNewline(t *testing.T) {
	t.Parallel()

	dec := protocol.NewDecoder(strings.NewReader("first\nlast"))

	l, err := dec.ReadLine()
	require.Nil(t, err)
	assert.Equal(t, "first", string(l))

	l, err = dec.ReadLine()
	require.Nil(t, err)
	assert.Equal(t, "last", string(l))

	_, err = dec.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_ReadRow_ShortRow(t *testing.T) {
	t.Parallel()

	// --- given ---
	// the stream ends after the first of three values
	dec := protocol.NewDecoder(strings.NewReader("rowkey\nv1\n"))

	// --- when ---
	row, err := dec.ReadRow(3)

	// --- then ---
	assert.Equal(t, protocol.ErrShortRow, err)
	require.NotNil(t, row)
	assert.Equal(t, "rowkey", string(row.Key))
	assert.Equal(t, [][]byte{[]byte("v1"), {}, {}}, row.Values)
}

func TestDecoder_ReadRow_EmptyStream(t *testing.T) {
	t.Parallel()

	row, err := protocol.NewDecoder(strings.NewReader("")).ReadRow(14)
	assert.Nil(t, row)
	assert.Equal(t, io.EOF, err)
}
