package store

// Result is the single completion of an asynchronous operation: exactly
// one of Value or Err is meaningful. Operations deliver one Result on a
// buffered channel and close it, so an abandoned channel never blocks
// the in-flight work.
type Result[T any] struct {
	Value T
	Err   error
}

// deliver sends the one result and closes the channel. The channel must
// have capacity 1.
func deliver[T any](out chan Result[T], res Result[T]) {
	out <- res
	close(out)
}
