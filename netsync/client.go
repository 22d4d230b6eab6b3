package netsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"XivSync/types"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = time.Second
	DefaultPollInterval   = 10 * time.Millisecond
)

type ClientConfig struct {
	HostAddress string
	// BindAddress is the optional local address; empty picks one.
	BindAddress       string
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	PollInterval      time.Duration
}

func (c *ClientConfig) setDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Handler consumes decoded frames in arrival order.
type Handler interface {
	Handle(seq uint64, ev types.Event)
}

type HandlerFunc func(seq uint64, ev types.Event)

func (f HandlerFunc) Handle(seq uint64, ev types.Event) { f(seq, ev) }

// ClientStats counts what the receive loop has seen. Sequence numbers are
// only observed, never used to reorder.
type ClientStats struct {
	Received  uint64
	Malformed uint64
	Gaps      uint64
	Reordered uint64
}

type Client struct {
	cfg  ClientConfig
	conn *net.UDPConn

	received  atomic.Uint64
	malformed atomic.Uint64
	gaps      atomic.Uint64
	reordered atomic.Uint64
	lastSeq   uint64

	// connected is set once the host has sent anything.
	connected atomic.Bool
}

// Dial opens a connected UDP socket to the host. Nothing is sent until Run.
func Dial(cfg ClientConfig) (*Client, error) {
	cfg.setDefaults()
	raddr, err := net.ResolveUDPAddr("udp", cfg.HostAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve host %s: %w", cfg.HostAddress, err)
	}
	var laddr *net.UDPAddr
	if cfg.BindAddress != "" {
		if laddr, err = net.ResolveUDPAddr("udp", cfg.BindAddress); err != nil {
			return nil, fmt.Errorf("resolve bind %s: %w", cfg.BindAddress, err)
		}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, terminate(fmt.Errorf("dial %s: %w", cfg.HostAddress, err))
	}
	return &Client{cfg: cfg, conn: conn}, nil
}

func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Stats() ClientStats {
	return ClientStats{
		Received:  c.received.Load(),
		Malformed: c.malformed.Load(),
		Gaps:      c.gaps.Load(),
		Reordered: c.reordered.Load(),
	}
}

// Run registers with the host, keeps the session alive and hands every frame
// to h until the link fails or ctx is cancelled. Link failures are returned
// as *TerminationError.
func (c *Client) Run(ctx context.Context, h Handler) error {
	c.connected.Store(false)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.keepAlive(gctx) })
	g.Go(func() error { return c.receive(gctx, h) })
	return g.Wait()
}

// keepAlive repeats the connect token every interval until the host answers,
// so a lost token does not cost the whole connect timeout, then sends
// heartbeats.
func (c *Client) keepAlive(ctx context.Context) error {
	c.sendToken(ConnectMagic[:], "connect token")
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.connected.Load() {
				c.sendToken(HeartbeatMagic[:], "heartbeat")
			} else {
				c.sendToken(ConnectMagic[:], "connect token")
			}
		}
	}
}

func (c *Client) sendToken(token []byte, what string) {
	if _, err := c.conn.Write(token); err != nil {
		log.WithError(err).Debugf("Sending %s failed", what)
	}
}

func (c *Client) receive(ctx context.Context, h Handler) error {
	buf := make([]byte, MaxDatagramSize)
	connectedAt := time.Now()
	var lastReceive time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PollInterval)); err != nil {
			return terminate(err)
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout(), errors.Is(err, syscall.ECONNREFUSED):
			case errors.Is(err, net.ErrClosed):
				return terminate(err)
			default:
				log.WithError(err).Debug("Receive failed")
			}

			if lastReceive.IsZero() {
				if time.Since(connectedAt) > c.cfg.ConnectTimeout {
					return terminate(ErrUnableToConnect)
				}
			} else if time.Since(lastReceive) > c.cfg.ReadTimeout {
				return terminate(ErrReadTimeout)
			}
			continue
		}

		if lastReceive.IsZero() {
			c.connected.Store(true)
			log.Infof("Receiving from %s", c.conn.RemoteAddr())
		}
		lastReceive = time.Now()

		seq, ev, err := DecodeFrame(buf[:n])
		if err != nil {
			c.malformed.Add(1)
			log.WithError(err).Warn("Dropping packet")
			continue
		}
		c.received.Add(1)
		c.trackSequence(seq)
		h.Handle(seq, ev)
	}
}

func (c *Client) trackSequence(seq uint64) {
	switch {
	case c.lastSeq == 0 || seq == c.lastSeq+1:
	case seq <= c.lastSeq:
		c.reordered.Add(1)
		log.Debugf("Out of order packet %d after %d", seq, c.lastSeq)
		return
	default:
		c.gaps.Add(1)
		log.Debugf("Sequence gap: %d after %d", seq, c.lastSeq)
	}
	c.lastSeq = seq
}
