package chainz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		name    string
		results []Tristate
		want    Tristate
	}{
		{"true with abstentions", []Tristate{True, Unset, True}, True},
		{"false with abstention", []Tristate{False, Unset}, False},
		{"all abstain", []Tristate{Unset, Unset}, Unset},
		{"mixed defaults to true", []Tristate{True, False}, True},
		{"mixed with abstention", []Tristate{False, Unset, True, False}, True},
		{"single true", []Tristate{True}, True},
		{"single false", []Tristate{False}, False},
		{"all false", []Tristate{False, False}, False},
		{"no results", nil, Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Join(tt.results))
		})
	}
}

func TestFireAndJoinResults(t *testing.T) {
	tests := []struct {
		name  string
		votes []Tristate
		want  Tristate
	}{
		{"true null true", []Tristate{True, Unset, True}, True},
		{"false null", []Tristate{False, Unset}, False},
		{"null null", []Tristate{Unset, Unset}, Unset},
		{"true false", []Tristate{True, False}, True},
		{"empty chain", nil, Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := New[int, Tristate]()
			defer chain.Close()

			for _, v := range tt.votes {
				mustAdd(chain, "voter", vote(v))
			}

			got, err := FireAndJoinResults(context.Background(), chain, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFireAndJoinResultsPropagatesFailure(t *testing.T) {
	chain := New[int, Tristate]()
	defer chain.Close()

	boom := errors.New("boom")
	mustAdd(chain, "yes", vote(True))
	mustAdd(chain, "broken", func(ctx context.Context, recv any, n int) (Tristate, error) {
		return Unset, boom
	})

	got, err := FireAndJoinResults(context.Background(), chain, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Unset, got)
}

func TestTristate(t *testing.T) {
	assert.Equal(t, True, FromBool(true))
	assert.Equal(t, False, FromBool(false))

	v, ok := True.Bool()
	assert.True(t, v)
	assert.True(t, ok)

	v, ok = False.Bool()
	assert.False(t, v)
	assert.True(t, ok)

	_, ok = Unset.Bool()
	assert.False(t, ok)

	assert.Equal(t, "true", True.String())
	assert.Equal(t, "false", False.String())
	assert.Equal(t, "unset", Unset.String())

	var zero Tristate
	assert.Equal(t, Unset, zero)
}
