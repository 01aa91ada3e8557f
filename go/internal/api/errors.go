package api

import (
	"context"
	"encoding/json"
	"errors"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
)

// PartialResultKey carries the JSON result a sweep committed before it aborted.
const PartialResultKey = "Engine-Partial-Result-Bin"

// toConnectError maps engine errors onto connect codes
func toConnectError(err error) *connect.Error {
	var code connect.Code
	switch {
	case errors.Is(err, engineerr.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, engineerr.ErrDuplicateTimer):
		code = connect.CodeAlreadyExists
	case errors.Is(err, engineerr.ErrInvalidTransition):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, engineerr.ErrConcurrencyConflict):
		code = connect.CodeAborted
	case errors.Is(err, engineerr.ErrInsufficientFunds):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, engineerr.ErrTransientStorage):
		code = connect.CodeUnavailable
	case errors.Is(err, engineerr.ErrDataIntegrity):
		code = connect.CodeDataLoss
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}

// withPartialResult attaches res to cerr so callers still see what was committed.
func withPartialResult(cerr *connect.Error, res any) *connect.Error {
	raw, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode partial sweep result")
		return cerr
	}
	cerr.Meta().Set(PartialResultKey, connect.EncodeBinaryHeader(raw))
	return cerr
}

// PartialResult decodes the result attached to a failed sweep call.
func PartialResult[T any](err error) (*T, bool) {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return nil, false
	}
	value := cerr.Meta().Get(PartialResultKey)
	if value == "" {
		return nil, false
	}
	raw, err := connect.DecodeBinaryHeader(value)
	if err != nil {
		return nil, false
	}
	var res T
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	return &res, true
}
