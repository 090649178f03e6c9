package pool

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Handle is an OS descriptor reduced for cross-process survival: a
// duplicated descriptor number plus, for sockets, the (family, type,
// protocol) triple the receiving process needs to rewrap it.
type Handle struct {
	FD       int
	Family   int
	Type     int
	Protocol int
	Socket   bool
}

// DupHandle duplicates a descriptor so the original can close without
// invalidating the copy. Socket metadata is read through getsockopt;
// a plain file descriptor comes back with Socket false and a zero
// triple.
func DupHandle(fd int) (Handle, error) {
	nfd, err := unix.Dup(fd)
	if err != nil {
		return Handle{}, fmt.Errorf("pool: dup fd %d: %w", fd, err)
	}
	unix.CloseOnExec(nfd)

	h := Handle{FD: nfd}
	family, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DOMAIN)
	if err != nil {
		// Not a socket; the duplicate alone is the handle.
		return h, nil
	}
	sotype, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		unix.Close(nfd)
		return Handle{}, fmt.Errorf("pool: socket type of fd %d: %w", fd, err)
	}
	proto, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PROTOCOL)
	if err != nil {
		unix.Close(nfd)
		return Handle{}, fmt.Errorf("pool: socket protocol of fd %d: %w", fd, err)
	}
	h.Family = family
	h.Type = sotype
	h.Protocol = proto
	h.Socket = true
	return h, nil
}

// Close releases the duplicated descriptor.
func (h Handle) Close() error {
	if err := unix.Close(h.FD); err != nil {
		return fmt.Errorf("pool: close fd %d: %w", h.FD, err)
	}
	return nil
}
