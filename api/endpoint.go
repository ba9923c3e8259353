// File: api/endpoint.go
//
// Non-blocking byte endpoint contract consumed by the stream layer.

package api

// Endpoint is a duplex, non-blocking byte channel with a pollable
// descriptor. Read and Write never block: when no progress is possible
// they return an error matching ErrWouldBlock.
type Endpoint interface {
	// Fd returns the pollable descriptor for reactor registration.
	Fd() int

	// Read reads up to len(p) bytes. Returns (0, nil) on EOF and an
	// error wrapping ErrWouldBlock when no data is available.
	Read(p []byte) (int, error)

	// Write writes up to len(p) bytes, possibly fewer. Returns an error
	// wrapping ErrWouldBlock when the endpoint cannot accept data.
	Write(p []byte) (int, error)

	// CloseRead half-closes the read direction.
	CloseRead() error

	// CloseWrite half-closes the write direction.
	CloseWrite() error

	// Close releases the endpoint.
	Close() error
}
