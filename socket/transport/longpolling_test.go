package transport

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongPollingReceive_FramesBeforeFailure(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		c := &lpConn{
			incoming: make(chan []byte, 4),
			errCh:    make(chan error, 1),
			ctx:      ctx,
			cancel:   cancel,
		}
		c.incoming <- []byte(`{"event":"room_deleted"}`)
		c.incoming <- []byte(`{"event":"fee_deleted"}`)
		c.fail(fmt.Errorf("%w: poll 410 Gone", ErrServerClosed))

		first, err := c.Receive()
		require.NoError(t, err)
		second, err := c.Receive()
		require.NoError(t, err)
		assert.Equal(t, `{"event":"room_deleted"}`, string(first))
		assert.Equal(t, `{"event":"fee_deleted"}`, string(second))

		_, err = c.Receive()
		assert.ErrorIs(t, err, ErrServerClosed)
		cancel()
	}
}
