package protocol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const versionPrefix = "PROTOCOL "

var ErrMalformedRequest = errors.New("malformed request")

// Handshake controls whether the protocol version is exchanged. With it off,
// the request is exactly two timestamp lines and rows follow right away.
type Handshake bool

const (
	WithVersion Handshake = true
	Legacy      Handshake = false
)

// WriteRequest sends the range bounds, then the version line when hs is on,
// and flushes.
func WriteRequest(enc *Encoder, req RangeRequest, version int, hs Handshake) error {
	if err := enc.WriteText(strconv.FormatInt(req.Start, 10)); err != nil {
		return err
	}
	if err := enc.WriteText(strconv.FormatInt(req.End, 10)); err != nil {
		return err
	}
	if hs {
		if err := WriteVersion(enc, version); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// ReadRequest reads what WriteRequest sent. The returned version is 0 when hs
// is off.
func ReadRequest(dec *Decoder, hs Handshake) (req RangeRequest, version int, err error) {
	if req.Start, err = readTimestamp(dec); err != nil {
		return req, 0, err
	}
	if req.End, err = readTimestamp(dec); err != nil {
		return req, 0, err
	}
	if hs {
		if version, err = ReadVersion(dec); err != nil {
			return req, 0, err
		}
	}
	return req, version, nil
}

func readTimestamp(dec *Decoder) (int64, error) {
	line, err := dec.ReadText()
	if err != nil {
		return 0, err
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedRequest, "timestamp %q", line)
	}
	return ts, nil
}

func WriteVersion(enc *Encoder, version int) error {
	return enc.WriteText(versionPrefix + strconv.Itoa(version))
}

func ReadVersion(dec *Decoder) (int, error) {
	line, err := dec.ReadText()
	if err != nil {
		return 0, err
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, versionPrefix) {
		return 0, errors.Wrapf(ErrMalformedRequest, "version line %q", line)
	}
	v, err := strconv.Atoi(strings.TrimPrefix(line, versionPrefix))
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedRequest, "version line %q", line)
	}
	return v, nil
}
