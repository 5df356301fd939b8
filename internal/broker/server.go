package broker

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"taxidispatch/internal/wire"
)

// writeTimeout bounds how long a slow backend subscriber can hold up a
// single fan-out write before the broker gives up on that connection.
const writeTimeout = 2 * time.Second

// subscribeControl is sent once by a backend connection immediately
// after dialing, declaring the topic prefixes it wants forwarded. An
// empty Prefixes slice subscribes to everything.
type subscribeControl struct {
	Prefixes []string `json:"prefixes"`
}

// Server is the topic-based pub/sub broker: a frontend where
// publishers connect and send frames, and a backend where subscribers
// connect, declare topic prefixes, and receive the rewritten frames.
type Server struct {
	FrontendAddr string
	BackendAddr  string
	Logger       *log.Logger

	hub *Hub[wire.Frame]

	mu        sync.Mutex
	listeners []net.Listener
}

func NewServer(frontendAddr, backendAddr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		FrontendAddr: frontendAddr,
		BackendAddr:  backendAddr,
		Logger:       logger,
		hub:          NewHub[wire.Frame](256),
	}
}

// Run starts the frontend and backend listeners and blocks until ctx
// is cancelled or a listener fails to bind (a fatal startup error).
func (s *Server) Run(ctx context.Context) error {
	frontend, err := net.Listen("tcp", s.FrontendAddr)
	if err != nil {
		return wrapListenErr("frontend", s.FrontendAddr, err)
	}
	backend, err := net.Listen("tcp", s.BackendAddr)
	if err != nil {
		frontend.Close()
		return wrapListenErr("backend", s.BackendAddr, err)
	}

	s.mu.Lock()
	s.listeners = []net.Listener{frontend, backend}
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.acceptFrontend(ctx, frontend)
	}()
	go func() {
		defer wg.Done()
		s.acceptBackend(ctx, backend)
	}()

	<-ctx.Done()
	frontend.Close()
	backend.Close()
	s.hub.Shutdown()
	wg.Wait()
	return nil
}

func (s *Server) acceptFrontend(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.Logger.Printf("broker: frontend accept error: %v", err)
				return
			}
		}
		go s.handlePublisher(wire.NewConn(conn))
	}
}

func (s *Server) acceptBackend(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.Logger.Printf("broker: backend accept error: %v", err)
				return
			}
		}
		go s.handleSubscriber(ctx, wire.NewConn(conn))
	}
}

// handlePublisher reads frames from a publisher connection forever,
// rewrites each topic per the routing table, and fans the result out
// to backend subscribers.
func (s *Server) handlePublisher(conn *wire.Conn) {
	defer conn.Close()
	for {
		frame, err := conn.ReadFrame(0)
		if err != nil {
			return
		}
		topic, recognized := RewriteTopic(frame.Topic, frame.Payload)
		if !recognized {
			s.Logger.Printf("broker: forwarding unrecognized/malformed payload on topic %q unchanged", frame.Topic)
		}
		s.hub.Publish(wire.Frame{Topic: topic, Payload: frame.Payload})
	}
}

// handleSubscriber reads the subscriber's one-time subscription
// control frame, then streams matching fan-out frames until the
// connection closes or ctx is cancelled. Rather than forwarding the
// subscription upstream to a zmq XSUB socket (no such primitive exists
// in this transport), the broker uses it directly to filter its own
// fan-out, which is the observable effect subscribers depend on.
func (s *Server) handleSubscriber(ctx context.Context, conn *wire.Conn) {
	defer conn.Close()

	first, err := conn.ReadFrame(5 * time.Second)
	if err != nil {
		s.Logger.Printf("broker: subscriber %s never sent a subscription frame: %v", conn.RemoteAddr(), err)
		return
	}
	var ctrl subscribeControl
	if err := json.Unmarshal(first.Payload, &ctrl); err != nil {
		s.Logger.Printf("broker: subscriber %s sent malformed subscription frame: %v", conn.RemoteAddr(), err)
		return
	}

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	// Detect the subscriber disconnecting (it never sends anything
	// further on this connection) by reading in the background.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		buf := make([]byte, 1)
		for {
			if _, err := conn.Underlying().Read(buf); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if !matchesAnyPrefix(frame.Topic, ctrl.Prefixes) {
				continue
			}
			if err := conn.WriteFrame(frame, writeTimeout); err != nil {
				return
			}
		}
	}
}

func matchesAnyPrefix(topic string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

type listenErr struct {
	side, addr string
	err        error
}

func (e *listenErr) Error() string {
	return e.side + " listen on " + e.addr + ": " + e.err.Error()
}

func (e *listenErr) Unwrap() error { return e.err }

func wrapListenErr(side, addr string, err error) error {
	return &listenErr{side: side, addr: addr, err: err}
}
