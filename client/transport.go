package client

// Transport carries raw Pusher envelopes over an established connection.
// Implementations must support Send and Recv from different goroutines, and
// Close must unblock a pending Recv.
type Transport interface {
	Connect(url string) error
	Send(data []byte) error
	Recv() ([]byte, error)
	Close() error
	IsOpen() bool
}

// TransportFactory builds a fresh transport for each connection attempt.
type TransportFactory func() Transport
