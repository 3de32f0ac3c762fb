package traffic

import "context"

// Replay sends flows in order and closes the channel after the last one,
// or earlier when ctx is done.
func Replay(ctx context.Context, flows []Flow) <-chan Flow {
	c := make(chan Flow)

	go func() {
		defer close(c)

		for _, f := range flows {
			select {
			case c <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return c
}
