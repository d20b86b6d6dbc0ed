package anthropic

import (
	"errors"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledReader blocks in Next until it is closed.
type stalledReader struct {
	closed chan struct{}
}

func (r *stalledReader) Next() bool {
	<-r.closed
	return false
}

func (r *stalledReader) Current() anthropic.MessageStreamEventUnion {
	return anthropic.MessageStreamEventUnion{}
}

func (r *stalledReader) Err() error {
	return errors.New("read on closed body")
}

func (r *stalledReader) Close() error {
	close(r.closed)
	return nil
}

func TestAnthropicStream_CloseInterruptsBlockedNext(t *testing.T) {
	s := newAnthropicStream(&stalledReader{closed: make(chan struct{})})

	next := make(chan bool)
	go func() { next <- s.Next() }()

	closed := make(chan error)
	go func() { closed <- s.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked while Next was waiting for an event")
	}
	select {
	case ok := <-next:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
	assert.NoError(t, s.Err())
}
