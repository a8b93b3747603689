// Package channel wraps Go channels behind small generic interfaces so the
// engine loop can run on a buffered channel in production and an unbuffered
// one under the debug build tag.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Cap() int
	Close()
}
