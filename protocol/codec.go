package protocol

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Sentinel replaces embedded newlines so that every value is one line.
// Values that contain the sentinel themselves do not survive a round trip.
const Sentinel = "<DEADBEEF>>"

var (
	newline  = []byte("\n")
	sentinel = []byte(Sentinel)

	// ErrShortRow is returned together with a complete Row when the stream
	// ended before all of its values arrived. The missing values are empty.
	ErrShortRow = errors.New("stream ended in the middle of a row")
)

// Row is one replicated record. Values are positional, one per non-key field
// of the schema.
type Row struct {
	Key    []byte
	Values [][]byte
}

func Escape(v []byte) []byte {
	return bytes.ReplaceAll(v, newline, sentinel)
}

func Unescape(line []byte) []byte {
	return bytes.ReplaceAll(line, sentinel, newline)
}

type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// WriteValue writes v as a single line. A nil value is an empty line.
func (e *Encoder) WriteValue(v []byte) error {
	if _, err := e.w.Write(Escape(v)); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

// WriteRow writes the key line followed by one line per value.
func (e *Encoder) WriteRow(row *Row) error {
	if err := e.WriteValue(row.Key); err != nil {
		return err
	}
	for _, v := range row.Values {
		if err := e.WriteValue(v); err != nil {
			return err
		}
	}
	return nil
}

// WriteText writes a control line (request bounds, version) as is.
func (e *Encoder) WriteText(s string) error {
	return e.WriteValue([]byte(s))
}

func (e *Encoder) Flush() error {
	return e.w.Flush()
}

type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator and with the
// sentinel expanded. io.EOF is returned only when no bytes were left; a last
// line without a terminator is returned as data.
func (d *Decoder) ReadLine() ([]byte, error) {
	line, err := d.r.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		return Unescape(line), nil
	}
	if err != nil {
		return nil, err
	}
	return Unescape(line[:len(line)-1]), nil
}

// ReadText reads a control line.
func (d *Decoder) ReadText() (string, error) {
	line, err := d.ReadLine()
	if err != nil {
		return "", err
	}
	return string(line), nil
}

// ReadRow reads a key line and n value lines. It returns io.EOF when the
// stream ends cleanly before a key. See ErrShortRow for a stream that ends
// inside a row.
func (d *Decoder) ReadRow(n int) (*Row, error) {
	key, err := d.ReadLine()
	if err != nil {
		return nil, err
	}

	row := &Row{Key: key, Values: make([][]byte, n)}
	for i := 0; i < n; i++ {
		v, err := d.ReadLine()
		if err == io.EOF {
			for j := i; j < n; j++ {
				row.Values[j] = []byte{}
			}
			return row, ErrShortRow
		}
		if err != nil {
			return nil, err
		}
		row.Values[i] = v
	}
	return row, nil
}
