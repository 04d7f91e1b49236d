package manager

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Join token errors
var (
	// ErrInvalidToken means the token was never issued here or is spent
	ErrInvalidToken = errors.New("invalid join token")
	// ErrTokenExpired means the token outlived its lifetime
	ErrTokenExpired = errors.New("join token expired")
)

// JoinToken authorises one node to join the cluster as a voter. A token is
// spent once the node has been added.
type JoinToken struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// joinTokens is the set of outstanding tokens issued by this node
type joinTokens struct {
	mu      sync.Mutex
	pending map[string]JoinToken
	now     func() time.Time
}

func newJoinTokens() *joinTokens {
	return &joinTokens{
		pending: make(map[string]JoinToken),
		now:     time.Now,
	}
}

// issue creates a token valid for ttl. Expired tokens are dropped first.
func (j *joinTokens) issue(ttl time.Duration) (JoinToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return JoinToken{}, fmt.Errorf("failed to generate join token: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	j.pruneLocked(now)

	jt := JoinToken{
		Token:     hex.EncodeToString(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	j.pending[jt.Token] = jt
	return jt, nil
}

// reserve removes token from the outstanding set so no other join can use
// it. A failed join hands it back with release.
func (j *joinTokens) reserve(token string) (JoinToken, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	jt, ok := j.pending[token]
	if !ok {
		return JoinToken{}, ErrInvalidToken
	}
	delete(j.pending, token)
	if j.now().After(jt.ExpiresAt) {
		return JoinToken{}, ErrTokenExpired
	}
	return jt, nil
}

// release returns a reserved token unless it expired meanwhile
func (j *joinTokens) release(jt JoinToken) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.now().After(jt.ExpiresAt) {
		j.pending[jt.Token] = jt
	}
}

// outstanding lists unexpired tokens, oldest first
func (j *joinTokens) outstanding() []JoinToken {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.pruneLocked(j.now())
	out := make([]JoinToken, 0, len(j.pending))
	for _, jt := range j.pending {
		out = append(out, jt)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (j *joinTokens) pruneLocked(now time.Time) {
	for token, jt := range j.pending {
		if now.After(jt.ExpiresAt) {
			delete(j.pending, token)
		}
	}
}
