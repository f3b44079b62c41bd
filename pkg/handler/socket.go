package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/foomo/snippetserver/pkg/metrics"
	"github.com/foomo/snippetserver/pkg/repo"
	"github.com/foomo/snippetserver/responses"
	"go.uber.org/zap"
)

const (
	sourceSocketServer = "socketserver"
	// maxHeaderLength bounds "<route>:<length>"
	maxHeaderLength = 64
)

type (
	Socket struct {
		dispatcher
	}
	SocketOption func(*Socket)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewSocket returns a shiny new socket server
func NewSocket(l *zap.Logger, repo *repo.Repo, opts ...SocketOption) *Socket {
	inst := &Socket{
		dispatcher: dispatcher{
			l:                l.Named("socket"),
			repo:             repo,
			maxRequestLength: DefaultMaxRequestLength,
		},
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// SocketWithMaxRequestLength rejects requests announcing a longer json body
func SocketWithMaxRequestLength(v int64) SocketOption {
	return func(o *Socket) {
		o.maxRequestLength = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Serve handles requests framed as "<route>:<length>{json}" until the client
// closes the connection or sends a broken request
func (h *Socket) Serve(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				if !errors.Is(err, io.EOF) {
					h.l.Error("panic in handle connection", zap.Error(err))
				}
			} else {
				h.l.Error("panic in handle connection", zap.String("error", fmt.Sprint(r)))
			}
		}
	}()

	remote := conn.RemoteAddr().String()
	metrics.NumSocketsGauge.WithLabelValues(remote).Inc()
	defer metrics.NumSocketsGauge.WithLabelValues(remote).Dec()

	h.l.Debug("socketServer.handleConnection", zap.String("remote", remote))

	var (
		headerBuffer [1]byte
		header       strings.Builder
	)
	for {
		// read with 1 byte steps until we find "{"
		if _, readErr := conn.Read(headerBuffer[:]); readErr != nil {
			h.l.Debug("looks like the client closed the connection", zap.Error(readErr))
			return
		}
		if headerBuffer[0] != '{' {
			if header.Len() >= maxHeaderLength {
				h.replyError(conn, errors.New("header too long"))
				return
			}
			header.WriteByte(headerBuffer[0])
			continue
		}

		// json has started
		route, jsonLength, headerErr := h.extractRouteAndJSONLength(header.String())
		header.Reset()
		if headerErr != nil {
			h.replyError(conn, headerErr)
			return
		}
		h.l.Debug("found json", zap.Int("length", jsonLength))

		jsonBytes := make([]byte, jsonLength)
		jsonBytes[0] = '{'
		if _, err := io.ReadFull(conn, jsonBytes[1:]); err != nil {
			h.l.Error("could not read json - giving up with this client connection", zap.Error(err))
			return
		}

		h.writeResponse(conn, h.execute(ctx, route, jsonBytes))
		// note: connection remains open
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (h *Socket) extractRouteAndJSONLength(header string) (route Route, jsonLength int, err error) {
	headerParts := strings.Split(header, ":")
	if len(headerParts) != 2 {
		return "", 0, fmt.Errorf("invalid header %q", header)
	}
	jsonLength, err = strconv.Atoi(headerParts[1])
	if err != nil {
		return "", 0, fmt.Errorf("could not parse length in header: %q", header)
	}
	if jsonLength < 2 {
		return "", 0, fmt.Errorf("json length must be at least 2, got %d", jsonLength)
	}
	if int64(jsonLength) > h.maxRequestLength {
		return "", 0, fmt.Errorf("json length %d exceeds the limit of %d", jsonLength, h.maxRequestLength)
	}
	return Route(headerParts[0]), jsonLength, nil
}

func (h *Socket) execute(ctx context.Context, route Route, jsonBytes []byte) (reply []byte) {
	h.l.Debug("incoming json buffer", zap.Int("length", len(jsonBytes)))
	reply, handlingError := h.handleRequest(ctx, route, jsonBytes, sourceSocketServer)
	if handlingError != nil {
		h.l.Error("socketServer.execute failed", zap.Error(handlingError))
	}
	return reply
}

func (h *Socket) replyError(conn net.Conn, err error) {
	h.l.Error("invalid request could not read header", zap.Error(err))
	encodedErr, encodingErr := h.encodeReply(responses.NewError(responses.CodeInvalidHeader, "invalid header "+err.Error()))
	if encodingErr != nil {
		h.l.Error("could not respond to invalid request", zap.Error(encodingErr))
		return
	}
	h.writeResponse(conn, encodedErr)
}

func (h *Socket) writeResponse(conn net.Conn, reply []byte) {
	reply = append([]byte(strconv.Itoa(len(reply))), reply...)
	n, writeError := conn.Write(reply)
	if writeError != nil {
		h.l.Error("socketServer.writeResponse: could not write reply", zap.Error(writeError))
		return
	}
	if n < len(reply) {
		h.l.Error("socketServer.writeResponse: write too short",
			zap.Int("got", n),
			zap.Int("expected", len(reply)),
		)
		return
	}
	h.l.Debug("replied. waiting for next request on open connection")
}
