package protocol

import (
	"strconv"
)

// Row keys start with a 10 digit epoch-second timestamp followed by up to
// eight characters. The suffixes below are the lowest and highest such tails,
// so every key that shares a prefix in [start, end] is inside the range.
// This is a string range on purpose: it must match the stored key format,
// not the numeric value of the timestamp.
const (
	StartKeySuffix = "00000000"
	EndKeySuffix   = "99zzzzzz"
)

// RangeRequest asks for rows ingested between Start and End, both inclusive,
// in epoch seconds.
type RangeRequest struct {
	Start int64
	End   int64
}

// NewRangeRequest covers interval seconds starting at timestamp.
func NewRangeRequest(timestamp, interval int64) RangeRequest {
	return RangeRequest{Start: timestamp, End: timestamp + interval}
}

// KeyRange is a scan range. StartKey is inclusive and EndKey is the
// exclusive stop row, as in an HBase Scan.
type KeyRange struct {
	StartKey string
	EndKey   string
}

// Plan turns a request into the key range to scan. It does not check that
// Start <= End; an inverted request yields a range that matches nothing.
func Plan(req RangeRequest) KeyRange {
	return KeyRange{
		StartKey: strconv.FormatInt(req.Start, 10) + StartKeySuffix,
		EndKey:   strconv.FormatInt(req.End, 10) + EndKeySuffix,
	}
}

// Contains reports whether key falls inside the range.
func (kr KeyRange) Contains(key string) bool {
	return key >= kr.StartKey && key < kr.EndKey
}
