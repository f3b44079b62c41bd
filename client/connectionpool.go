package client

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ErrPoolDrained is returned for calls after ShutDown
var ErrPoolDrained = errors.New("connection pool drained")

type (
	connectionPool struct {
		server      string
		dialTimeout time.Duration
		waitTimeout time.Duration
		// one token per connection that may be open at the same time
		slots chan struct{}
		idle  chan *poolConn
		done  chan struct{}
		once  sync.Once
	}
	poolConn struct {
		conn   net.Conn
		reader *bufio.Reader
	}
	connReturn struct {
		conn *poolConn
		err  error
	}
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func newConnectionPool(server string, size int, dialTimeout, waitTimeout time.Duration) *connectionPool {
	if size < 1 {
		size = 1
	}
	return &connectionPool{
		server:      server,
		dialTimeout: dialTimeout,
		waitTimeout: waitTimeout,
		slots:       make(chan struct{}, size),
		idle:        make(chan *poolConn, size),
		done:        make(chan struct{}),
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// get blocks until a connection is free, the wait timeout passes or the pool is drained
func (p *connectionPool) get(ctx context.Context) (*poolConn, error) {
	var timeout <-chan time.Time
	if p.waitTimeout > 0 {
		timer := time.NewTimer(p.waitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.done:
		return nil, ErrPoolDrained
	default:
	}

	select {
	case p.slots <- struct{}{}:
	case <-p.done:
		return nil, ErrPoolDrained
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for a connection")
	case <-timeout:
		return nil, errors.Errorf("timed out after %s waiting for a connection to %s", p.waitTimeout, p.server)
	}

	select {
	case pc := <-p.idle:
		return pc, nil
	default:
	}

	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.server)
	if err != nil {
		<-p.slots
		return nil, errors.Wrapf(err, "could not connect to %s", p.server)
	}
	return &poolConn{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// put hands a connection back, broken ones are closed
func (p *connectionPool) put(r connReturn) {
	defer func() { <-p.slots }()
	if r.err != nil {
		_ = r.conn.conn.Close()
		return
	}
	select {
	case <-p.done:
		_ = r.conn.conn.Close()
		return
	default:
	}
	select {
	case p.idle <- r.conn:
	default:
		_ = r.conn.conn.Close()
		return
	}
	// drained while handing back
	select {
	case <-p.done:
		_ = p.drain()
	default:
	}
}

// drain closes idle connections and makes further calls fail,
// busy connections are closed when they come back
func (p *connectionPool) drain() (err error) {
	p.once.Do(func() {
		close(p.done)
	})
	for {
		select {
		case pc := <-p.idle:
			err = multierr.Append(err, pc.conn.Close())
		default:
			return err
		}
	}
}
