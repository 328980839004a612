package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tezhandshake/wire"
)

// FrameReadWriter moves whole frames. ReadFrame and WriteFrame both return
// the complete frame bytes, length prefix included.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) ([]byte, error)
}

// FrameObserver is notified of every frame that crosses a Conn.
type FrameObserver interface {
	FrameSent(size int)
	FrameReceived(size int)
}

// ConnConfig bounds the blocking operations of a Conn.
type ConnConfig struct {
	// DialTimeout bounds connection establishment. Zero means no limit
	// beyond the context passed to Dial.
	DialTimeout time.Duration
	// ReadTimeout bounds each ReadFrame call. Zero means no deadline; the
	// caller must Close the Conn to abandon a stalled read.
	ReadTimeout time.Duration
	// WriteTimeout bounds each WriteFrame call. Zero means no deadline, as
	// for ReadTimeout.
	WriteTimeout time.Duration

	Observer FrameObserver
	Logger   *logrus.Entry
}

// DefaultConnConfig returns ten second dial, read and write timeouts.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Validate rejects negative timeouts. Zero disables the matching deadline.
func (c ConnConfig) Validate() error {
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Conn is a framed TCP stream to a single peer.
type Conn struct {
	conn      net.Conn
	addr      string
	cfg       ConnConfig
	logger    *logrus.Entry
	closeOnce sync.Once
	closeErr  error
}

// Dial opens a TCP connection to addr. The context cancels the dial only;
// use Close to abandon an established Conn.
func Dial(ctx context.Context, addr string, cfg ConnConfig) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newOpError("dial", addr, err)
	}

	logger := connLogger(cfg).WithFields(logrus.Fields{
		"function": "Dial",
		"address":  addr,
	})
	logger.Debug("Dialing peer")

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		err = classify(err)
		logger.WithError(err).Debug("Dial failed")
		return nil, newOpError("dial", addr, err)
	}

	logger.WithField("local_addr", c.LocalAddr().String()).Debug("Connected")
	return NewConn(c, cfg), nil
}

// NewConn wraps an established connection.
func NewConn(c net.Conn, cfg ConnConfig) *Conn {
	addr := ""
	if ra := c.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Conn{
		conn:   c,
		addr:   addr,
		cfg:    cfg,
		logger: connLogger(cfg).WithField("address", addr),
	}
}

func connLogger(cfg ConnConfig) *logrus.Entry {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return logrus.WithField("component", "transport")
}

// ReadFrame blocks until a whole frame arrives, the read deadline passes or
// the connection is closed.
func (c *Conn) ReadFrame() ([]byte, error) {
	if c.cfg.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return nil, newOpError("read", c.addr, classify(err))
		}
	}

	frame, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, newOpError("read", c.addr, classify(err))
	}

	if c.cfg.Observer != nil {
		c.cfg.Observer.FrameReceived(len(frame))
	}
	c.logger.WithFields(logrus.Fields{
		"function": "ReadFrame",
		"size":     len(frame),
	}).Debug("Frame received")
	return frame, nil
}

// WriteFrame sends payload as one frame and returns the bytes written.
func (c *Conn) WriteFrame(payload []byte) ([]byte, error) {
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return nil, newOpError("write", c.addr, classify(err))
		}
	}

	frame, err := wire.WriteFrame(c.conn, payload)
	if err != nil {
		return nil, newOpError("write", c.addr, classify(err))
	}

	if c.cfg.Observer != nil {
		c.cfg.Observer.FrameSent(len(frame))
	}
	c.logger.WithFields(logrus.Fields{
		"function": "WriteFrame",
		"size":     len(frame),
	}).Debug("Frame sent")
	return frame, nil
}

// RemoteAddr returns the peer address as dialed or accepted.
func (c *Conn) RemoteAddr() string {
	return c.addr
}

// LocalAddr returns the local end of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the underlying connection. Blocked reads and writes return
// ErrConnectionClosed. Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		c.logger.WithField("function", "Close").Debug("Connection closed")
	})
	return c.closeErr
}

// classify maps low level network errors onto ErrTimeout and
// ErrConnectionClosed, keeping the original error in the chain.
func classify(err error) error {
	var netErr net.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wire.ErrMalformedMessage):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	default:
		return err
	}
}
