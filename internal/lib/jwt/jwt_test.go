package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken_Unique(t *testing.T) {
	exp := time.Now().Add(time.Hour)

	a, err := NewToken("alice", exp, "secret")
	require.NoError(t, err)
	b, err := NewToken("alice", exp, "secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestSubject(t *testing.T) {
	token, err := NewToken("alice", time.Now().Add(time.Hour), "secret")
	require.NoError(t, err)

	sub, err := Subject(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	_, err = Subject(token, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Subject("garbage", "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubject_IgnoresExpiry(t *testing.T) {
	token, err := NewToken("bob", time.Now().Add(-time.Hour), "secret")
	require.NoError(t, err)

	sub, err := Subject(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "bob", sub)
}
