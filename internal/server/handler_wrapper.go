// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/maruel/ksid"
	"github.com/maruel/solardb/internal/server/dto"
	"github.com/maruel/solardb/internal/server/ratelimit"
	"github.com/maruel/solardb/internal/server/reqctx"
)

// Config holds the per-request policies applied by Wrap.
type Config struct {
	// MaxRequestBodyBytes limits request bodies. 0 means unlimited.
	MaxRequestBodyBytes int64
	// Limits holds the rate limit tiers. nil disables rate limiting.
	Limits *ratelimit.Config
	// JWTSecret verifies bearer tokens.
	JWTSecret []byte
	// RequireAuth requires a valid bearer token on mutating requests.
	RequireAuth bool
}

// addRequestMetadataToContext adds the client IP and a fresh request ID to
// the context.
func addRequestMetadataToContext(ctx context.Context, r *http.Request) context.Context {
	ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
	return reqctx.WithRequestID(ctx, ksid.NewID())
}

// isMutating returns true for HTTP methods that modify state.
func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

// checkRateLimit checks rate limit and wraps the response writer if needed.
// Returns the (possibly wrapped) writer and whether the request should proceed.
func checkRateLimit(w http.ResponseWriter, tier *ratelimit.Tier, identifier string) (http.ResponseWriter, bool) {
	if tier == nil {
		return w, true
	}
	result := tier.Limiter.Allow(ratelimit.BuildKey(identifier, tier.Name))
	w = ratelimit.NewResponseWriter(w, result)
	if !result.Allowed {
		writeError(w, dto.RateLimitExceeded(int(result.RetryAfter.Seconds())))
		return w, false
	}
	return w, true
}

// readAndDecodeBody reads the request body with size limit and decodes JSON into input.
// Returns false if an error occurred and was written to the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, cfg *Config) bool {
	if cfg.MaxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, dto.PayloadTooLarge(maxBytesErr.Limit))
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeError(w, dto.BadRequest("Failed to read request body"))
		return false
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, input); err != nil {
			slog.WarnContext(ctx, "Failed to decode request body", "err", err)
			writeError(w, dto.BadRequest("Invalid request body").Wrap(err))
			return false
		}
	}
	return true
}

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON. The output is sent as the data of
// the response envelope.
// Path parameters can be extracted by tagging struct fields with `path:"name"`
// and query parameters with `query:"name"`.
// *In must implement dto.Validatable.
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		w.Header().Set("X-Request-ID", reqctx.RequestID(ctx).String())

		var ok bool
		if w, ok = checkRateLimit(w, cfg.Limits.Match(r.Method, r.URL.Path), reqctx.ClientIP(ctx)); !ok {
			return
		}

		if cfg.RequireAuth && isMutating(r.Method) {
			sub, err := validateJWT(r, cfg.JWTSecret)
			if err != nil {
				slog.WarnContext(ctx, "Rejected request", "err", err, "ip", reqctx.ClientIP(ctx))
				writeError(w, dto.Unauthorized().Wrap(err))
				return
			}
			ctx = reqctx.WithSubject(ctx, sub)
		}

		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input, cfg) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)
		if err := PtrIn(input).Validate(); err != nil {
			writeJSONResponse[Out](ctx, w, nil, err)
			return
		}

		output, err := fn(ctx, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

// writeJSONResponse writes the envelope holding output, or the error.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		var ews dto.ErrorWithStatus
		if !errors.As(err, &ews) {
			ews = dto.InternalWithError("internal error", err)
		}
		if ews.StatusCode() >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", ews.StatusCode(), "code", ews.Code())
		} else {
			slog.InfoContext(ctx, "Request failed", "err", err, "statusCode", ews.StatusCode(), "code", ews.Code())
		}
		writeError(w, ews)
		return
	}
	resp := dto.Response{Success: true}
	if output != nil {
		resp.Data = output
	}
	writeEnvelope(w, http.StatusOK, &resp)
}

// writeError writes the failure envelope of err.
func writeError(w http.ResponseWriter, err dto.ErrorWithStatus) {
	writeEnvelope(w, err.StatusCode(), &dto.Response{
		Error:   err.Error(),
		Code:    err.Code(),
		Details: err.Details(),
	})
}

func writeEnvelope(w http.ResponseWriter, statusCode int, resp *dto.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}

// populatePathParams extracts path parameters from the request and populates
// struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		tag := typ.Field(i).Tag.Get("path")
		if tag == "" {
			continue
		}
		if v := r.PathValue(tag); v != "" && typ.Field(i).Type.Kind() == reflect.String {
			elem.Field(i).SetString(v)
		}
	}
}

// populateQueryParams extracts query parameters from the request and populates
// struct fields tagged with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		v := query.Get(tag)
		if v == "" {
			continue
		}
		fieldVal := elem.Field(i)
		switch field.Type.Kind() {
		case reflect.String:
			fieldVal.SetString(v)
		case reflect.Int:
			if n, err := strconv.Atoi(v); err == nil {
				fieldVal.SetInt(int64(n))
			}
		default:
			if u, ok := fieldVal.Addr().Interface().(encoding.TextUnmarshaler); ok {
				_ = u.UnmarshalText([]byte(v))
			}
		}
	}
}

func structElem(input any) (reflect.Value, bool) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return reflect.Value{}, false
	}
	elem := val.Elem()
	return elem, elem.Kind() == reflect.Struct
}
