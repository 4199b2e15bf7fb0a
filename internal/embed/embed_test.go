package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestHashVectorDeterministic(t *testing.T) {
	a := HashVector("jwt rotation with redis")
	b := HashVector("jwt rotation with redis")
	require.Equal(t, a, b)
	require.Len(t, a, Dim)
}

func TestHashVectorCommutativeOverWhitespace(t *testing.T) {
	a := HashVector("jwt   rotation\nwith redis")
	b := HashVector("jwt rotation with redis")
	require.Equal(t, a, b)
}

func TestHashVectorDistinctForDistinctText(t *testing.T) {
	a := HashVector("jwt rotation with redis")
	b := HashVector("completely unrelated topic about birds")
	require.NotEqual(t, a, b)
	require.Less(t, Similarity(a, b), 0.9)
}

func TestHashVectorEmptyText(t *testing.T) {
	v := HashVector("")
	require.Len(t, v, Dim)
	for _, f := range v {
		require.Zero(t, f)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("endpoint unreachable")
}

func TestFallbackEmbedderDegradesOnPrimaryError(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	fe := NewFallbackEmbedder(failingEmbedder{}, log)
	v, err := fe.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, HashVector("hello world"), v)
}

func TestFallbackEmbedderNoPrimaryConfigured(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	fe := NewFallbackEmbedder(nil, log)
	v, err := fe.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, HashVector("hello world"), v)
}
