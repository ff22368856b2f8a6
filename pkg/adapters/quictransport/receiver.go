// Package quictransport carries per-channel frame sets over QUIC
// unidirectional streams, one frame set per stream.
package quictransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/user/pointstream/pkg/ports"
)

// ALPN is the application protocol negotiated by client and server.
const ALPN = "pointstream"

const (
	// DefaultTimeout bounds a single ReceivePackets call.
	DefaultTimeout = 500 * time.Millisecond

	// streamTimeout bounds reading one frame set from a stream.
	streamTimeout = 5 * time.Second
)

// ErrClosed is returned by ReceivePackets after Close.
var ErrClosed = errors.New("quictransport: closed")

// Config configures a Receiver.
type Config struct {
	Address     string        // listen address; empty for all interfaces
	Port        int           // listen port; 0 picks a free port
	Timeout     time.Duration // receive bound; 0 uses DefaultTimeout
	Channels    int           // expected channels; 0 accepts any count
	Certificate *Certificate  // nil generates a self-signed certificate
	IdleTimeout time.Duration // QUIC idle timeout; 0 uses the quic-go default
}

// Receiver accepts QUIC connections and implements ports.PacketSource.
// Only the most recent complete frame set is kept.
type Receiver struct {
	ln      *quic.Listener
	cfg     Config
	cert    *Certificate
	log     ports.Logger
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
	mu      sync.Mutex
	latest  chan [][]byte
	dropped atomic.Uint64
	once    sync.Once
	err     error
}

// Listen starts a QUIC listener and its accept loop.
func Listen(cfg Config, log ports.Logger) (*Receiver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cert := cfg.Certificate
	if cert == nil {
		var err error
		if cert, err = GenerateCertificate(DefaultValidity); err != nil {
			return nil, err
		}
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert.TLS},
		NextProtos:   []string{ALPN},
	}
	quicConf := &quic.Config{
		MaxIdleTimeout: cfg.IdleTimeout,
	}
	ln, err := quic.ListenAddr(net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)), tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("quictransport: listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	r := &Receiver{
		ln:     ln,
		cfg:    cfg,
		cert:   cert,
		log:    log.WithComponent("quic"),
		cancel: cancel,
		group:  g,
		done:   make(chan struct{}),
		latest: make(chan [][]byte, 1),
	}
	g.Go(func() error {
		return r.acceptLoop(ctx)
	})
	go func() {
		r.err = g.Wait()
		close(r.done)
	}()
	return r, nil
}

// Addr returns the bound local address.
func (r *Receiver) Addr() net.Addr {
	return r.ln.Addr()
}

// Certificate returns the certificate presented to clients.
func (r *Receiver) Certificate() *Certificate {
	return r.cert
}

// Dropped returns the number of frame sets replaced before being received.
func (r *Receiver) Dropped() uint64 {
	return r.dropped.Load()
}

// ReceivePackets returns the latest complete frame set, waiting up to the
// configured timeout for one to arrive.
func (r *Receiver) ReceivePackets() ([][]byte, error) {
	select {
	case fs := <-r.latest:
		return fs, nil
	default:
	}

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()
	select {
	case fs := <-r.latest:
		return fs, nil
	case <-timer.C:
		return nil, ports.ErrTimeout
	case <-r.done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, r.err)
		}
		return nil, ErrClosed
	}
}

func (r *Receiver) acceptLoop(ctx context.Context) error {
	for {
		conn, err := r.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("quictransport: accept: %w", err)
		}
		r.log.Info("Accepted connection from %s", conn.RemoteAddr())
		r.group.Go(func() error {
			r.serve(ctx, conn)
			return nil
		})
	}
}

// serve reads frame sets from the unidirectional streams of one connection.
func (r *Receiver) serve(ctx context.Context, conn quic.Connection) {
	defer conn.CloseWithError(0, "")
	for {
		str, err := conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Info("Connection from %s closed: %v", conn.RemoteAddr(), err)
			}
			return
		}
		_ = str.SetReadDeadline(time.Now().Add(streamTimeout))
		fs, err := ReadFrameSet(str)
		if err != nil {
			r.log.Warn("Dropped frame set: %v", err)
			str.CancelRead(0)
			continue
		}
		if r.cfg.Channels > 0 && len(fs) != r.cfg.Channels {
			r.log.Warn("Dropped frame set: %v", fmt.Errorf("%w: %d channels, want %d", ErrMalformedFrameSet, len(fs), r.cfg.Channels))
			continue
		}
		r.offer(fs)
	}
}

// offer stores fs as the latest frame set, replacing one not yet received.
func (r *Receiver) offer(fs [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.latest:
		r.dropped.Add(1)
	default:
	}
	r.latest <- fs
}

// Close stops the listener and waits for the connection handlers.
func (r *Receiver) Close() error {
	var err error
	r.once.Do(func() {
		r.cancel()
		err = r.ln.Close()
		<-r.done
	})
	return err
}

var _ ports.PacketSource = (*Receiver)(nil)
