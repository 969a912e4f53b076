package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a pipeline stage shuts down before
// its upstream producer does.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
