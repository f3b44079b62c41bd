package handler

import (
	"context"
	"time"

	"github.com/foomo/snippetserver/pkg/metrics"
	"github.com/foomo/snippetserver/pkg/repo"
	"github.com/foomo/snippetserver/requests"
	"github.com/foomo/snippetserver/responses"
	"github.com/foomo/snippetserver/snippet"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxRequestLength bounds the json body of a single request
const DefaultMaxRequestLength = 32 << 20

// dispatcher decodes requests, calls the repo and encodes the replies for
// both the http and the socket handler
type dispatcher struct {
	l                *zap.Logger
	repo             *repo.Repo
	maxRequestLength int64
}

func (d *dispatcher) handleRequest(ctx context.Context, route Route, jsonBytes []byte, source string) ([]byte, error) {
	start := time.Now()

	reply, err := d.executeRequest(ctx, route, jsonBytes)
	result := "success"
	if err != nil {
		result = "error"
	}

	metrics.ServiceRequestCounter.WithLabelValues(string(route), result, source).Inc()
	metrics.ServiceRequestDuration.WithLabelValues(string(route), result, source).Observe(time.Since(start).Seconds())

	return reply, err
}

func (d *dispatcher) executeRequest(ctx context.Context, route Route, jsonBytes []byte) (replyBytes []byte, err error) {
	var (
		reply             interface{}
		apiErr            error
		jsonErr           error
		processIfJSONIsOk = func(err error, processingFunc func()) {
			if err != nil {
				jsonErr = err
				return
			}
			processingFunc()
		}
	)
	if len(jsonBytes) == 0 {
		jsonBytes = []byte("{}")
	}

	switch route {
	case RouteList:
		reply = d.repo.List()
	case RouteGet:
		req := &requests.Get{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			s, ok := d.repo.Get(req.ID)
			if !ok {
				apiErr = errors.Wrapf(repo.ErrNotFound, "id %q", req.ID)
				return
			}
			reply = s
		})
	case RouteCreate:
		req := &requests.Create{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply, apiErr = d.repo.Create(ctx, req.Snippet)
		})
	case RouteUpdate:
		req := &requests.Update{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			apiErr = d.repo.Update(ctx, req.ID, req.Patch)
			reply = &responses.Update{Success: apiErr == nil}
		})
	case RouteDelete:
		req := &requests.Delete{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			apiErr = d.repo.Delete(ctx, req.ID)
			reply = &responses.Update{Success: apiErr == nil}
		})
	case RouteDuplicate:
		req := &requests.Duplicate{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply, apiErr = d.repo.Duplicate(ctx, req.ID)
		})
	case RouteSearch:
		req := &requests.Search{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = d.repo.Search(req.Query)
		})
	case RouteCompletions:
		req := &requests.Completions{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = d.repo.Completions(req.Language)
		})
	case RouteFolders:
		reply = d.repo.Folders()
	case RouteImport:
		req := &requests.Import{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			format, err := repo.ParseFormat(req.Format)
			if err != nil {
				apiErr = errors.Wrap(repo.ErrMalformed, err.Error())
				return
			}
			n, err := d.repo.Import(ctx, []byte(req.Data), format)
			reply, apiErr = &responses.Import{Imported: n}, err
		})
	case RouteExport:
		req := &requests.Export{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			format, err := repo.ParseFormat(req.Format)
			if err != nil {
				apiErr = errors.Wrap(repo.ErrMalformed, err.Error())
				return
			}
			data, err := d.repo.Export(format)
			reply, apiErr = &responses.Export{Format: string(format), Data: string(data)}, err
		})
	default:
		reply = responses.NewError(responses.CodeUnknownHandler, "unknown handler: "+string(route))
	}

	// error handling
	if jsonErr != nil {
		d.l.Error("could not read incoming json", zap.Error(jsonErr))
		reply = responses.NewError(responses.CodeInvalidJSON, "could not read incoming json "+jsonErr.Error())
	} else if apiErr != nil {
		d.l.Info("request failed", zap.String("route", string(route)), zap.Error(apiErr))
		reply = errorReply(apiErr)
	}

	return d.encodeReply(reply)
}

// encodeReply takes an interface and encodes it as JSON
// it returns the resulting JSON and a marshalling error
func (d *dispatcher) encodeReply(reply interface{}) (replyBytes []byte, err error) {
	replyBytes, err = json.Marshal(map[string]interface{}{
		"reply": reply,
	})
	if err != nil {
		d.l.Error("could not encode reply", zap.Error(err))
	}
	return
}

func errorReply(err error) *responses.Error {
	var ve snippet.ValidationError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return responses.NewError(responses.CodeNotFound, err.Error())
	case errors.Is(err, repo.ErrMalformed), errors.As(err, &ve):
		return responses.NewError(responses.CodeInvalidInput, err.Error())
	default:
		return responses.NewError(responses.CodeInternal, "internal error "+err.Error())
	}
}
