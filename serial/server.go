package serial

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMinPortAge is how long a released port rests before it is handed out again
	DefaultMinPortAge = 10 * time.Second

	// maxPortTries bounds the search for a port that is neither reserved nor resting
	maxPortTries = 100

	// connTimeout bounds how long a client may take to send its request
	connTimeout = 5 * time.Second
)

// Server is the allocator. Requests are served one at a time, so every reply
// reflects all requests answered before it.
type Server struct {
	SockPath   string
	MinPortAge time.Duration
	Logger     *logrus.Logger

	listener net.Listener

	mu          sync.Mutex
	serial      uint
	portsByName map[string][]int
	reserved    map[int]string

	// resting holds released ports until MinPortAge has passed
	resting *cache.Cache
}

// NewServer returns an allocator that will listen on sockPath
func NewServer(sockPath string, minPortAge time.Duration) *Server {
	return &Server{
		SockPath:    sockPath,
		MinPortAge:  minPortAge,
		Logger:      logrus.StandardLogger(),
		portsByName: make(map[string][]int),
		reserved:    make(map[int]string),
		resting:     cache.New(cache.NoExpiration, time.Minute),
	}
}

// Listen binds the unix socket, replacing a stale socket file left by an earlier allocator
func (s *Server) Listen() error {
	if err := os.Remove(s.SockPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove stale socket %s", s.SockPath)
	}
	listener, err := net.Listen("unix", s.SockPath)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.SockPath)
	}
	s.listener = listener
	return nil
}

// Serve answers requests until ctx is done. Listen is called first if it has not been.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.Logger.WithField("sock", s.SockPath).Info("serial allocator listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.listener.Close()
	})
	g.Go(func() error {
		var conns sync.WaitGroup
		defer conns.Wait()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept allocator connection")
			}
			conns.Add(1)
			go func() {
				defer conns.Done()
				s.handleConnection(conn)
			}()
		}
	})

	err := g.Wait()
	os.Remove(s.SockPath)
	return err
}

// handleConnection reads one request, answers it and closes the connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(connTimeout)); err != nil {
		s.Logger.WithError(err).Warn("set connection deadline")
		return
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		s.Logger.WithError(err).Warn("read allocator request")
		return
	}
	cmd, name, err := parseRequest(line)
	if err != nil {
		s.Logger.WithError(err).Warn("ignoring allocator request")
		return
	}

	values, err := s.handle(cmd, name)
	if err != nil {
		s.Logger.WithError(err).WithFields(logrus.Fields{"command": cmd, "name": name}).Error("allocator request failed")
		return
	}

	s.Logger.WithFields(logrus.Fields{
		"command":  cmd,
		"name":     name,
		"response": values,
	}).Debug("allocator request")

	var reply strings.Builder
	for _, v := range values {
		fmt.Fprintf(&reply, "%d\n", v)
	}
	if _, err := conn.Write([]byte(reply.String())); err != nil {
		s.Logger.WithError(err).Warn("write allocator reply")
	}
}

// handle applies one request to the allocator state
func (s *Server) handle(cmd Command, name string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case GetSerial:
		s.serial++
		return []int{int(s.serial)}, nil
	case GetPort:
		port, err := s.freePort()
		if err != nil {
			return nil, err
		}
		s.reserved[port] = name
		s.portsByName[name] = append(s.portsByName[name], port)
		return []int{port}, nil
	case PutPorts:
		ports := s.portsByName[name]
		for _, port := range ports {
			delete(s.reserved, port)
			if s.MinPortAge > 0 {
				s.resting.Set(strconv.Itoa(port), name, s.MinPortAge)
			}
		}
		delete(s.portsByName, name)
		return []int{len(ports)}, nil
	case ListPorts:
		return append([]int{}, s.portsByName[name]...), nil
	}
	return nil, errors.Wrapf(ErrBadRequest, "unknown command %q", cmd)
}

// freePort asks the kernel for an unused TCP port that is neither reserved nor resting
func (s *Server) freePort() (int, error) {
	for try := 0; try < maxPortTries; try++ {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 0, errors.Wrap(err, "find free port")
		}
		port := listener.Addr().(*net.TCPAddr).Port
		listener.Close()

		if _, present := s.reserved[port]; present {
			continue
		}
		if _, resting := s.resting.Get(strconv.Itoa(port)); resting {
			continue
		}
		return port, nil
	}
	return 0, errors.Errorf("no free port after %d tries", maxPortTries)
}
