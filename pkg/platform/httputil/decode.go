package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

// Normalizable requests canonicalize their fields before validation.
type Normalizable interface {
	Normalize()
}

// Validatable requests check themselves and return a domain error.
type Validatable interface {
	Validate() error
}

// Decode reads exactly one JSON object into T. Unknown fields, trailing
// data, and bodies cut off by BodyLimit are rejected.
func Decode[T any](r *http.Request) (*T, error) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request body must contain a single JSON object")
	}
	return &req, nil
}

func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	case errors.Is(err, io.EOF):
		return dErrors.New(dErrors.CodeBadRequest, "request body is empty")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON")
	case errors.As(err, &typeErr):
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%s has the wrong type", typeErr.Field))
	default:
		// DisallowUnknownFields reports `json: unknown field "x"` without a typed error.
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
}

// Prepare runs Normalize then Validate when the request implements them.
// Non-domain validation errors become validation_failed.
func Prepare(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	v, ok := req.(Validatable)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
}

// DecodeAndPrepare decodes and prepares a request. On failure it writes the
// error response and returns false.
//
//	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, err := Decode[T](r)
	if err == nil {
		err = Prepare(req)
	}
	if err != nil {
		ctx := r.Context()
		logger.WarnContext(ctx, "rejected request body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
