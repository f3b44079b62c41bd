package client

import (
	"context"

	"github.com/foomo/snippetserver/pkg/handler"
	"github.com/foomo/snippetserver/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type transport interface {
	call(ctx context.Context, route handler.Route, request interface{}, response interface{}) error
	shutdown()
}

type serverResponse struct {
	Reply jsoniter.RawMessage `json:"reply"`
}

// decodeReply unwraps {"reply": ...} into response or returns the remote error
func decodeReply(responseBytes []byte, response interface{}) error {
	var sr serverResponse
	if err := json.Unmarshal(responseBytes, &sr); err != nil {
		return errors.Wrap(err, "could not unmarshal response")
	}
	// error replies carry a code, snippets and lists do not
	var remoteErr responses.Error
	if err := json.Unmarshal(sr.Reply, &remoteErr); err == nil && remoteErr.Code != 0 {
		return &remoteErr
	}
	if response == nil {
		return nil
	}
	return json.Unmarshal(sr.Reply, response)
}
