package idgen

import (
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeWorkerRange(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.ErrorIs(t, err, ErrInvalidWorkerID)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.ErrorIs(t, err, ErrInvalidWorkerID)

	_, err = NewSnowflake(maxWorkerID)
	assert.NoError(t, err)
}

func TestGenerateUniqueConcurrent(t *testing.T) {
	s, err := NewSnowflake(3)
	require.NoError(t, err)

	const workers, perWorker = 8, 2000
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := s.Generate()
				if assert.NoError(t, err) {
					ids <- id
				}
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestGenerateSequenceRollover(t *testing.T) {
	s, err := NewSnowflake(1)
	require.NoError(t, err)

	clock := epoch + 1000
	calls := 0
	s.now = func() int64 {
		calls++
		// 序列号耗尽后第二次读取时钟进入下一毫秒
		if calls > maxSequence+2 {
			return clock + 1
		}
		return clock
	}

	var last int64
	for i := 0; i <= maxSequence+1; i++ {
		id, err := s.Generate()
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
	assert.Equal(t, clock+1, s.timestamp)
	assert.Equal(t, int64(0), s.sequence)
}

func TestGenerateClockBackwards(t *testing.T) {
	s, err := NewSnowflake(1)
	require.NoError(t, err)

	s.now = func() int64 { return epoch + 5000 }
	_, err = s.Generate()
	require.NoError(t, err)

	s.now = func() int64 { return epoch + 4000 }
	_, err = s.Generate()
	assert.Error(t, err)
}

func TestNextTransaction(t *testing.T) {
	s, err := NewSnowflake(1)
	require.NoError(t, err)

	id, no, err := s.NextTransaction()
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.True(t, strings.HasPrefix(no, "TRD"))
	assert.True(t, strings.HasSuffix(no, strconv.FormatInt(id, 10)))
}
