package metricsink

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/core-tools/hsu-reactor/pkg/deadline"
	"github.com/core-tools/hsu-reactor/pkg/errors"
)

// connection is a non-blocking TCP socket with two readiness watchers:
// a level-triggered one for writability and an edge-triggered one for
// readability.
type connection struct {
	fd           int
	writeWatcher int
	readWatcher  int
}

func newConnection(family int) (*connection, error) {
	c := &connection{fd: -1, writeWatcher: -1, readWatcher: -1}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.NewResourceError("failed to create socket", err)
	}
	c.fd = fd

	if c.writeWatcher, err = newWatcher(fd, unix.EPOLLOUT); err != nil {
		c.close()
		return nil, err
	}
	if c.readWatcher, err = newWatcher(fd, unix.EPOLLIN|unix.EPOLLET); err != nil {
		c.close()
		return nil, err
	}

	// header and body go out as separate writes
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	return c, nil
}

func newWatcher(fd int, events uint32) (int, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return -1, errors.NewResourceError("failed to create epoll instance", err)
	}
	event := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		unix.Close(epfd)
		return -1, errors.NewResourceError("failed to register socket with epoll", err)
	}
	return epfd, nil
}

func (c *connection) close() error {
	var firstErr error
	for _, fd := range []*int{&c.readWatcher, &c.writeWatcher, &c.fd} {
		if *fd < 0 {
			continue
		}
		if err := unix.Close(*fd); err != nil && firstErr == nil {
			firstErr = err
		}
		*fd = -1
	}
	return firstErr
}

// wait blocks on watcher for at most timeoutMs and reports whether it became ready
func wait(watcher int, timeoutMs int) (bool, error) {
	events := make([]unix.EpollEvent, 1)
	for {
		n, err := unix.EpollWait(watcher, events, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

// connect starts a non-blocking connect. If it does not complete at once,
// it waits up to connectTimeout for writability and then checks SO_ERROR.
// Returns whether the connect completed synchronously.
func (c *connection) connect(sa unix.Sockaddr, connectTimeout time.Duration) (bool, error) {
	err := unix.Connect(c.fd, sa)
	if err == nil {
		return true, nil
	}
	if err != unix.EINPROGRESS {
		return false, errors.NewNetworkError("connect failed", err)
	}

	ready, err := wait(c.writeWatcher, int(connectTimeout/time.Millisecond))
	if err != nil {
		return false, errors.NewResourceError("failed to wait for connect", err)
	}
	if !ready {
		return false, errors.NewTimeoutError("connect timed out", nil).WithContext("connect_timeout", connectTimeout.String())
	}

	soErr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, errors.NewResourceError("failed to read socket error", err)
	}
	if soErr != 0 {
		return false, errors.NewNetworkError("connect failed", unix.Errno(soErr))
	}
	return false, nil
}

// waitWithBudget waits on watcher for the remaining budget and deducts the time spent
func waitWithBudget(watcher int, budget *deadline.Budget, phase string) error {
	start := budget.Mark()
	ready, err := wait(watcher, budget.WaitMillis())
	if err != nil {
		return errors.NewResourceError("failed to wait for socket readiness", err).WithContext("phase", phase)
	}
	if !ready {
		return errors.NewTimeoutError("timeout while waiting for endpoint", nil).WithContext("phase", phase)
	}
	budget.SpendSince(start)
	if budget.Exhausted() {
		return errors.NewTimeoutError("timeout budget exhausted", nil).WithContext("phase", phase)
	}
	return nil
}

// writeAll writes data completely, waiting for writability on EAGAIN
func (c *connection) writeAll(data []byte, budget *deadline.Budget, phase string) error {
	written := 0
	for written < len(data) {
		n, err := unix.SendmsgN(c.fd, data[written:], nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
			written += n
		case err == unix.EINTR:
		case err == unix.EAGAIN:
			if err := waitWithBudget(c.writeWatcher, budget, phase); err != nil {
				return err
			}
		default:
			return errors.NewNetworkError("failed to send "+phase, err)
		}
	}
	return nil
}

// readAtLeast reads into buf until min bytes arrived, waiting for
// readability on EAGAIN
func (c *connection) readAtLeast(buf []byte, min int, budget *deadline.Budget) (int, error) {
	got := 0
	for got < min {
		n, err := unix.Read(c.fd, buf[got:])
		switch {
		case err == nil && n > 0:
			got += n
		case err == nil:
			return got, errors.NewNetworkError("connection closed by endpoint", nil).WithContext("received", got)
		case err == unix.EINTR:
		case err == unix.EAGAIN:
			if err := waitWithBudget(c.readWatcher, budget, "response"); err != nil {
				return got, err
			}
		default:
			return got, errors.NewNetworkError("failed to receive answer", err)
		}
	}
	return got, nil
}

// discardPending drops unread bytes left over from an earlier response and
// reports whether the endpoint still keeps the connection open.
func (c *connection) discardPending() bool {
	buf := make([]byte, 512)
	for {
		n, err := unix.Read(c.fd, buf)
		switch {
		case err == nil && n > 0:
		case err == nil:
			return false
		case err == unix.EINTR:
		case err == unix.EAGAIN:
			return true
		default:
			return false
		}
	}
}

func toSockaddr(ip net.IP, port uint16) (unix.Sockaddr, int) {
	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: int(port)}
		copy(sa.Addr[:], v4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: int(port)}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6
}
