//go:build !debug

package channel

// New returns a buffered channel of the given size. Build with -tags debug to
// make every send rendezvous with its receiver instead.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
