// Package serial hands out serial numbers and free TCP ports to test
// processes running side by side, so that every test can derive names and
// listen addresses no other test is using.
//
// Requests and replies are lines on a unix stream socket. A request is
//
//	COMMAND,name
//
// and the reply is one decimal integer per line, after which the allocator
// closes the connection. GETSERIAL returns the next serial number, starting
// at 1. GETPORT reserves a free TCP port for name. PUTPORTS gives back every
// port reserved for name and replies with their count. LISTPORTS replies with
// the ports reserved for name, possibly none.
package serial

import (
	"strings"

	"github.com/pkg/errors"
)

// Command is a request verb of the allocator protocol
type Command string

const (
	GetSerial Command = "GETSERIAL"
	GetPort   Command = "GETPORT"
	PutPorts  Command = "PUTPORTS"
	ListPorts Command = "LISTPORTS"
)

var (
	// ErrTimeout is returned when the allocator does not answer in time. The
	// request is not retried: the allocator may already have acted on it.
	ErrTimeout = errors.New("serial allocator timed out")

	// ErrBadRequest is returned for a request the allocator cannot parse
	ErrBadRequest = errors.New("bad allocator request")
)

var commands = map[Command]bool{
	GetSerial: true,
	GetPort:   true,
	PutPorts:  true,
	ListPorts: true,
}

// validName checks that a request name can be carried by the protocol
func validName(name string) error {
	if name == "" {
		return errors.Wrap(ErrBadRequest, "empty name")
	}
	if strings.ContainsAny(name, ",\n") {
		return errors.Wrapf(ErrBadRequest, "name %q contains a separator", name)
	}
	return nil
}

// formatRequest builds the request line for a command
func formatRequest(cmd Command, name string) (string, error) {
	if !commands[cmd] {
		return "", errors.Wrapf(ErrBadRequest, "unknown command %q", cmd)
	}
	if err := validName(name); err != nil {
		return "", err
	}
	return string(cmd) + "," + name + "\n", nil
}

// parseRequest splits a request line into its command and name
func parseRequest(line string) (Command, string, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, ",", 2)
	if len(fields) != 2 {
		return "", "", errors.Wrapf(ErrBadRequest, "%q", line)
	}
	cmd := Command(fields[0])
	if !commands[cmd] {
		return "", "", errors.Wrapf(ErrBadRequest, "unknown command %q", fields[0])
	}
	if err := validName(fields[1]); err != nil {
		return "", "", err
	}
	return cmd, fields[1], nil
}
