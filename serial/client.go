package serial

import (
	"bufio"
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds a request when the client sets no timeout of its own
const DefaultTimeout = 10 * time.Second

// Client talks to the allocator listening on a unix socket. Each request
// uses its own connection, so a Client may be shared between goroutines.
type Client struct {
	SockPath string
	Timeout  time.Duration
}

// NewClient returns a client of the allocator at sockPath
func NewClient(sockPath string) *Client {
	return &Client{SockPath: sockPath, Timeout: DefaultTimeout}
}

// GetSerial returns a serial number no other caller of the allocator receives
func (c *Client) GetSerial(ctx context.Context, name string) (uint, error) {
	values, err := c.request(ctx, GetSerial, name)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 || values[0] < 1 {
		return 0, errors.Errorf("allocator returned serial %v", values)
	}
	return uint(values[0]), nil
}

// GetPort reserves a free TCP port for name
func (c *Client) GetPort(ctx context.Context, name string) (int, error) {
	values, err := c.request(ctx, GetPort, name)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 || values[0] < 1 || values[0] > 65535 {
		return 0, errors.Errorf("allocator returned port %v", values)
	}
	return values[0], nil
}

// PutPorts releases every port reserved for name and returns how many there were
func (c *Client) PutPorts(ctx context.Context, name string) (int, error) {
	values, err := c.request(ctx, PutPorts, name)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, errors.Errorf("allocator returned count %v", values)
	}
	return values[0], nil
}

// ListPorts returns the ports reserved for name, in reservation order
func (c *Client) ListPorts(ctx context.Context, name string) ([]int, error) {
	return c.request(ctx, ListPorts, name)
}

// request sends one request and reads the integers of the reply. A request
// that times out fails with ErrTimeout and is never sent again.
func (c *Client) request(ctx context.Context, cmd Command, name string) ([]int, error) {
	line, err := formatRequest(cmd, name)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.SockPath)
	if err != nil {
		return nil, wrapErr(ctx, err, cmd)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set allocator deadline")
	}

	if _, err := conn.Write([]byte(line)); err != nil {
		return nil, wrapErr(ctx, err, cmd)
	}

	values := []int{}
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return nil, errors.Wrapf(err, "%s reply", cmd)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapErr(ctx, err, cmd)
	}
	return values, nil
}

// wrapErr turns deadline expiry into ErrTimeout and adds the command to any other error
func wrapErr(ctx context.Context, err error, cmd Command) error {
	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrapf(ErrTimeout, "%s", cmd)
	}
	return errors.Wrapf(err, "%s", cmd)
}
