package protocol_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meltwater/hbase-scripts/protocol"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	kr := protocol.Plan(protocol.NewRangeRequest(1300000000, 59))

	assert.Equal(t, "130000000000000000", kr.StartKey)
	assert.Equal(t, "130000005999zzzzzz", kr.EndKey)
}

func TestPlan_KeysInsideRange(t *testing.T) {
	t.Parallel()

	const (
		start = int64(1300000000)
		end   = int64(1300000010)
	)
	kr := protocol.Plan(protocol.RangeRequest{Start: start, End: end})

	for ts := start; ts <= end; ts++ {
		prefix := strconv.FormatInt(ts, 10)
		for _, suffix := range []string{"00000000", "00000001", "12345678", "5a0f3c2e", "99zzzzzy"} {
			key := prefix + suffix
			assert.True(t, kr.Contains(key), key)
			assert.LessOrEqual(t, kr.StartKey, key)
			assert.Less(t, key, kr.EndKey)
		}
	}

	// neighbours of the range stay outside
	assert.False(t, kr.Contains(strconv.FormatInt(start-1, 10)+"99999999"))
	assert.False(t, kr.Contains(strconv.FormatInt(end+1, 10)+"00000000"))
}

func TestPlan_InvertedRangeMatchesNothing(t *testing.T) {
	t.Parallel()

	kr := protocol.Plan(protocol.RangeRequest{Start: 1300000010, End: 1300000000})

	assert.Greater(t, kr.StartKey, kr.EndKey)
	assert.False(t, kr.Contains("130000000512345678"))
}
