package client

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/foomo/snippetserver/pkg/handler"
	"github.com/pkg/errors"
)

// socketTransport sends one request per pooled connection at a time
type socketTransport struct {
	pool *connectionPool
}

func newSocketTransport(server string, connectionPoolSize int, dialTimeout, waitTimeout time.Duration) transport {
	return &socketTransport{
		pool: newConnectionPool(server, connectionPoolSize, dialTimeout, waitTimeout),
	}
}

func (st *socketTransport) shutdown() {
	_ = st.pool.drain()
}

func (st *socketTransport) call(ctx context.Context, route handler.Route, request interface{}, response interface{}) error {
	jsonBytes, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "could not marshal request")
	}

	pc, err := st.pool.get(ctx)
	if err != nil {
		return err
	}
	responseBytes, err := st.roundTrip(ctx, pc, route, jsonBytes)
	st.pool.put(connReturn{conn: pc, err: err})
	if err != nil {
		return err
	}
	return decodeReply(responseBytes, response)
}

func (st *socketTransport) roundTrip(ctx context.Context, pc *poolConn, route handler.Route, jsonBytes []byte) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = pc.conn.SetDeadline(deadline)
	} else {
		_ = pc.conn.SetDeadline(time.Time{})
	}

	// header and json look like route:2{}
	if _, err := fmt.Fprintf(pc.conn, "%s:%d%s", route, len(jsonBytes), jsonBytes); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	return readReply(pc)
}

// readReply reads "<length>{json}"
func readReply(pc *poolConn) ([]byte, error) {
	header, err := pc.reader.ReadString('{')
	if err != nil {
		return nil, errors.Wrap(err, "could not read response length")
	}
	length, err := strconv.Atoi(header[:len(header)-1])
	if err != nil || length < 1 {
		return nil, errors.Errorf("invalid response length %q", header)
	}
	responseBytes := make([]byte, length)
	responseBytes[0] = '{'
	if _, err := io.ReadFull(pc.reader, responseBytes[1:]); err != nil {
		return nil, errors.Wrap(err, "an error occurred while reading the response")
	}
	return responseBytes, nil
}
