//go:build debug

package channel

// New ignores size and returns an unbuffered channel, which surfaces ordering
// bugs hidden by buffering.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
