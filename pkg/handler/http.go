package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/foomo/snippetserver/pkg/repo"
	httputils "github.com/foomo/keel/utils/net/http"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const sourceWebserver = "webserver"

type (
	HTTP struct {
		dispatcher
		path string
	}
	HTTPOption func(*HTTP)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewHTTP returns a shiny new web server
func NewHTTP(l *zap.Logger, repo *repo.Repo, opts ...HTTPOption) http.Handler {
	inst := &HTTP{
		dispatcher: dispatcher{
			l:                l.Named("http"),
			repo:             repo,
			maxRequestLength: DefaultMaxRequestLength,
		},
		path: "/snippetserver",
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithBasePath(v string) HTTPOption {
	return func(o *HTTP) {
		o.path = strings.TrimSuffix(v, "/")
	}
}

func WithMaxRequestLength(v int64) HTTPOption {
	return func(o *HTTP) {
		o.maxRequestLength = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputils.ServerError(h.l, w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if !strings.HasPrefix(r.URL.Path, h.path+"/") {
		httputils.ServerError(h.l, w, r, http.StatusNotFound, errors.Errorf("path %q not found", r.URL.Path))
		return
	}
	if r.Body == nil {
		httputils.BadRequestServerError(h.l, w, r, errors.New("empty request body"))
		return
	}

	bytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxRequestLength))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputils.ServerError(h.l, w, r, http.StatusRequestEntityTooLarge, errors.Wrap(err, "request too large"))
		return
	} else if err != nil {
		httputils.BadRequestServerError(h.l, w, r, errors.Wrap(err, "failed to read incoming request"))
		return
	}

	route := Route(strings.TrimPrefix(r.URL.Path, h.path+"/"))
	reply, errReply := h.handleRequest(r.Context(), route, bytes, sourceWebserver)
	if errReply != nil {
		http.Error(w, errReply.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(reply)
}
