package transport

import (
	"context"
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Doorbell is an eventfd-backed wake signal, the Go-native analog of the
// inter-processor-interrupt doorbell in spec.md §4.1. Ringing it never
// blocks the sender; the peer observes it via Wait, which comp_get_status
// uses to block for a component's next response.
type Doorbell struct {
	fd    int
	ready chan struct{}
}

// NewDoorbell creates a doorbell and starts its receive pump. The
// underlying eventfd is blocking: pump's Read unblocks either when the
// counter is written (Ring) or when Close tears the fd down, at which
// point Read returns an error and the pump exits.
func NewDoorbell() (*Doorbell, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	d := &Doorbell{fd: fd, ready: make(chan struct{}, 1)}
	go d.pump()
	return d, nil
}

// Ring raises the doorbell: an 8-byte write to the eventfd counter. This
// never blocks for the single-increment range used here, matching
// "cross-core enqueue never blocks the sender".
func (d *Doorbell) Ring() error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, err := unix.Write(d.fd, buf)
	return err
}

// Wait blocks until the doorbell has been rung at least once since the
// last Wait, or ctx is done.
func (d *Doorbell) Wait(ctx context.Context) error {
	select {
	case <-d.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the eventfd, which unblocks the receive pump.
func (d *Doorbell) Close() error {
	return unix.Close(d.fd)
}

func (d *Doorbell) pump() {
	buf := make([]byte, 8)
	for {
		n, err := unix.Read(d.fd, buf)
		if err != nil || n != 8 {
			return
		}
		select {
		case d.ready <- struct{}{}:
		default:
		}
	}
}
