// Package metricsink sends line-protocol records to a metrics HTTP endpoint
// over one persistent non-blocking connection, bounding connect, send and
// receive by a single timeout budget.
package metricsink

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/core-tools/hsu-reactor/pkg/deadline"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
)

const (
	DefaultConnectTimeout = 10 * time.Second

	successStatusLine  = "HTTP/1.1 204 No Content"
	responseBufferSize = 128
)

// Endpoint is the static description of a metrics endpoint.
type Endpoint struct {
	Host      string `yaml:"host" validate:"required"`
	Port      uint16 `yaml:"port" validate:"required"`
	Path      string `yaml:"path" validate:"required,startswith=/"`
	AuthToken string `yaml:"auth_token,omitempty"`
	// Timeout is the budget in seconds shared by all phases of one SendLine
	Timeout float64 `yaml:"timeout" validate:"gt=0"`
	// ConnectTimeout bounds the wait for an in-progress connect
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// Sink owns the session state of one Endpoint: the live connection is opened
// lazily, reused across calls and dropped on any failure. Calls are
// serialised, so at most one connection attempt is ever in flight.
type Sink struct {
	endpoint Endpoint
	logger   logging.Logger

	mutex    sync.Mutex
	conn     *connection
	connects int
}

func NewSink(endpoint Endpoint, logger logging.Logger) *Sink {
	if endpoint.ConnectTimeout <= 0 {
		endpoint.ConnectTimeout = DefaultConnectTimeout
	}
	return &Sink{
		endpoint: endpoint,
		logger:   logger,
	}
}

func (s *Sink) Endpoint() Endpoint {
	return s.endpoint
}

// Connected reports whether a live connection is kept for the next call
func (s *Sink) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.conn != nil
}

// Connects returns how many connections have been established so far
func (s *Sink) Connects() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.connects
}

func (s *Sink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.drop()
}

// SendLine posts line (without its trailing newline) and succeeds only on
// "HTTP/1.1 204 No Content". Any failure closes the connection.
func (s *Sink) SendLine(line string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	budget := deadline.NewBudget(s.endpoint.Timeout)
	s.logger.Debugf("Sending with timeout %1.2f", budget.Remaining())

	if budget.Exhausted() {
		return errors.NewTimeoutError("no timeout budget", nil).WithContext("endpoint", s.endpoint.Address())
	}

	if s.conn != nil && !s.conn.discardPending() {
		s.logger.Debugf("Connection to %s was closed by the endpoint, reconnecting", s.endpoint.Address())
		s.drop()
	}

	if s.conn == nil {
		if err := s.connect(budget); err != nil {
			return err
		}
	}

	if err := s.exchange(line, budget); err != nil {
		s.logger.Errorf("Not successful writing to %s: %v", s.endpoint.Address(), err)
		s.drop()
		return err
	}

	s.logger.Debugf("Success")
	return nil
}

func (s *Sink) connect(budget *deadline.Budget) error {
	address := s.endpoint.Address()
	start := budget.Mark()

	ip, err := s.resolve(budget)
	if err != nil {
		s.logger.Errorf("Unable to get an IP for: %s: %v", s.endpoint.Host, err)
		return err
	}

	sa, family := toSockaddr(ip, s.endpoint.Port)
	conn, err := newConnection(family)
	if err != nil {
		s.logger.Errorf("Unable to create socket: %v", err)
		return err
	}

	immediate, err := conn.connect(sa, s.endpoint.ConnectTimeout)
	if err != nil {
		s.logger.Errorf("Unable to connect to %s: %v", address, err)
		conn.close()
		return err
	}
	if immediate {
		s.logger.Debugf("Connected to %s", address)
	} else {
		s.logger.Debugf("Successfully connected to %s after waiting", address)
	}

	budget.SpendSince(start)
	if budget.Exhausted() {
		s.logger.Errorf("Timeout for %s after connecting", address)
		conn.close()
		return errors.NewTimeoutError("timeout budget exhausted", nil).WithContext("phase", "connect")
	}

	s.conn = conn
	s.connects++
	return nil
}

// resolve parses the host as a literal address first and falls back to DNS,
// preferring IPv4 answers.
func (s *Sink) resolve(budget *deadline.Budget) (net.IP, error) {
	if ip := net.ParseIP(s.endpoint.Host); ip != nil {
		return ip, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), budget.RemainingDuration())
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, s.endpoint.Host)
	if err != nil {
		return nil, errors.NewNetworkError("failed to resolve host", err).WithContext("host", s.endpoint.Host)
	}
	for _, addr := range addrs {
		if addr.IP.To4() != nil {
			return addr.IP, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}
	return nil, errors.NewNetworkError("no address for host", nil).WithContext("host", s.endpoint.Host)
}

// exchange runs header, body and response phases strictly in order
func (s *Sink) exchange(line string, budget *deadline.Budget) error {
	header, body := buildRequest(s.endpoint, line)

	if err := s.conn.writeAll(header, budget, "header"); err != nil {
		return err
	}
	if err := s.conn.writeAll(body, budget, "body"); err != nil {
		return err
	}

	answer := make([]byte, responseBufferSize)
	n, err := s.conn.readAtLeast(answer, len(successStatusLine), budget)
	if err != nil {
		return err
	}

	if !bytes.HasPrefix(answer[:n], []byte(successStatusLine)) {
		return errors.NewProtocolError("unexpected response", nil).WithContext("received", statusLine(answer[:n]))
	}
	return nil
}

func (s *Sink) drop() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.close()
	s.conn = nil
	return err
}

func buildRequest(endpoint Endpoint, line string) ([]byte, []byte) {
	body := []byte(line + "\n")
	header := fmt.Sprintf("POST %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Content-Length: %d\r\n"+
		"Authorization: %s\r\n\r\n",
		endpoint.Path, endpoint.Address(), len(body), endpoint.AuthToken)
	return []byte(header), body
}

func statusLine(answer []byte) string {
	if i := bytes.IndexByte(answer, '\r'); i >= 0 {
		answer = answer[:i]
	}
	return string(answer)
}
