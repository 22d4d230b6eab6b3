package netsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"XivSync/types"
)

const (
	DefaultHeartbeatInterval   = 500 * time.Millisecond
	DefaultMaxMissedHeartbeats = 3
	// DefaultQueueSize holds a few full ticks per session.
	DefaultQueueSize = 2048

	acceptPoll = 250 * time.Millisecond
)

type ServerConfig struct {
	Address             string
	HeartbeatInterval   time.Duration
	MaxMissedHeartbeats int
	QueueSize           int
}

func (c *ServerConfig) setDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxMissedHeartbeats <= 0 {
		c.MaxMissedHeartbeats = DefaultMaxMissedHeartbeats
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Server fans scan events out to every registered client.
type Server struct {
	cfg  ServerConfig
	conn *net.UDPConn

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

type session struct {
	key   string
	addr  *net.UDPAddr
	out   chan types.Event
	alive chan struct{}
	seq   uint64

	cancel context.CancelFunc
	once   sync.Once
}

// Listen binds the host socket.
func Listen(cfg ServerConfig) (*Server, error) {
	cfg.setDefaults()
	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, terminate(fmt.Errorf("bind %s: %w", cfg.Address, err))
	}
	log.Infof("Sync server listening on %s", conn.LocalAddr())
	return &Server{cfg: cfg, conn: conn, sessions: make(map[string]*session)}, nil
}

func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Sessions returns the number of registered clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run accepts clients and forwards events until ctx is cancelled or the
// socket fails. All sessions are torn down before it returns.
func (s *Server) Run(ctx context.Context, events <-chan types.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(gctx) })
	g.Go(func() error { return s.fanOut(gctx, events) })
	err := g.Wait()

	s.dropAll()
	s.wg.Wait()
	return err
}

func (s *Server) Close() error {
	return s.conn.Close()
}

func (s *Server) fanOut(ctx context.Context, events <-chan types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return terminate(errors.New("event source closed"))
			}
			s.Broadcast(ev)
		}
	}
}

// Broadcast offers ev to every session without blocking. A session whose
// queue is full misses this event.
func (s *Server) Broadcast(ev types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		select {
		case sess.out <- ev:
		default:
			log.Debugf("Queue full for %s, dropping %v", sess.key, ev)
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(acceptPoll)); err != nil {
			return terminate(err)
		}
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, net.ErrClosed):
				return terminate(err)
			}
			log.WithError(err).Debug("Receive on sync socket failed")
			continue
		}
		s.handleDatagram(ctx, buf[:n], addr)
	}
}

func (s *Server) handleDatagram(ctx context.Context, data []byte, addr *net.UDPAddr) {
	key := addr.String()
	s.mu.Lock()
	sess := s.sessions[key]
	s.mu.Unlock()

	switch {
	case bytes.Equal(data, ConnectMagic[:]):
		if sess != nil {
			sess.touch()
			return
		}
		s.register(ctx, addr)
	case bytes.Equal(data, HeartbeatMagic[:]):
		if sess == nil {
			log.Debugf("Heartbeat from unknown client %s", key)
			return
		}
		sess.touch()
	default:
		log.Debugf("Ignoring %d byte datagram from %s", len(data), key)
	}
}

func (s *Server) register(ctx context.Context, addr *net.UDPAddr) {
	sctx, cancel := context.WithCancel(ctx)
	sess := &session{
		key:    addr.String(),
		addr:   addr,
		out:    make(chan types.Event, s.cfg.QueueSize),
		alive:  make(chan struct{}, 1),
		cancel: cancel,
	}

	s.mu.Lock()
	s.sessions[sess.key] = sess
	count := len(s.sessions)
	s.mu.Unlock()
	log.Infof("Client %s connected (%d active)", sess.key, count)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.drop(sess, s.send(sctx, sess))
	}()
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		err := watchHeartbeat(sctx, sess.alive, ticker.C, s.cfg.MaxMissedHeartbeats, func(missed int) {
			log.Debugf("Client %s missed heartbeat %d/%d", sess.key, missed, s.cfg.MaxMissedHeartbeats)
		})
		s.drop(sess, err)
	}()
}

// send serializes the session's queue with its own sequence counter.
func (s *Server) send(ctx context.Context, sess *session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sess.out:
			sess.seq++
			frame, err := EncodeFrame(ev, sess.seq)
			if err != nil {
				log.WithError(err).Warn("Dropping unencodable event")
				continue
			}
			if _, err := s.conn.WriteToUDP(frame, sess.addr); err != nil {
				return fmt.Errorf("send to %s: %w", sess.key, err)
			}
		}
	}
}

// drop removes a session. Safe to call from both session goroutines.
func (s *Server) drop(sess *session, reason error) {
	sess.once.Do(func() {
		s.mu.Lock()
		if s.sessions[sess.key] == sess {
			delete(s.sessions, sess.key)
		}
		s.mu.Unlock()
		sess.cancel()

		if reason != nil && !errors.Is(reason, context.Canceled) {
			log.Warnf("Client %s disconnected: %v", sess.key, terminate(reason))
		}
	})
}

func (s *Server) dropAll() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		s.drop(sess, context.Canceled)
	}
}

func (sess *session) touch() {
	select {
	case sess.alive <- struct{}{}:
	default:
	}
}

// watchHeartbeat counts a strike for every tick that passes without a
// heartbeat since the previous tick and returns ErrHeartbeatTimeout once
// maxMissed strikes are consecutive. strike is called with the running count.
func watchHeartbeat(ctx context.Context, alive <-chan struct{}, ticks <-chan time.Time, maxMissed int, strike func(int)) error {
	seen := false
	missed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-alive:
			seen = true
			missed = 0
		case <-ticks:
			if seen {
				seen = false
				continue
			}
			missed++
			if strike != nil {
				strike(missed)
			}
			if missed >= maxMissed {
				return ErrHeartbeatTimeout
			}
		}
	}
}
