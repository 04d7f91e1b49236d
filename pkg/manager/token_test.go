package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinTokensSpentOnce(t *testing.T) {
	j := newJoinTokens()

	jt, err := j.issue(time.Hour)
	require.NoError(t, err)
	assert.Len(t, jt.Token, 64)

	_, err = j.reserve("nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	got, err := j.reserve(jt.Token)
	require.NoError(t, err)
	assert.Equal(t, jt, got)

	_, err = j.reserve(jt.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJoinTokensReleasedAfterFailedJoin(t *testing.T) {
	j := newJoinTokens()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	jt, err := j.issue(time.Minute)
	require.NoError(t, err)

	held, err := j.reserve(jt.Token)
	require.NoError(t, err)
	j.release(held)
	_, err = j.reserve(jt.Token)
	require.NoError(t, err)

	// a token that expired while reserved is not handed back
	now = now.Add(2 * time.Minute)
	j.release(held)
	assert.Empty(t, j.pending)
}

func TestJoinTokensConcurrentReserve(t *testing.T) {
	j := newJoinTokens()
	jt, err := j.issue(time.Hour)
	require.NoError(t, err)

	const joiners = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := j.reserve(jt.Token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestJoinTokensExpire(t *testing.T) {
	j := newJoinTokens()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	short, err := j.issue(time.Minute)
	require.NoError(t, err)
	now = now.Add(time.Second)
	long, err := j.issue(time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	tokens := j.outstanding()
	require.Len(t, tokens, 1)
	assert.Equal(t, long.Token, tokens[0].Token)

	_, err = j.reserve(short.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJoinTokensExpiredOnReserve(t *testing.T) {
	j := newJoinTokens()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	jt, err := j.issue(time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = j.reserve(jt.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	_, err = j.reserve(jt.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJoinTokensIssuePrunes(t *testing.T) {
	j := newJoinTokens()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	_, err := j.issue(time.Minute)
	require.NoError(t, err)
	now = now.Add(time.Hour)
	_, err = j.issue(time.Minute)
	require.NoError(t, err)

	assert.Len(t, j.pending, 1)
}
