package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/middleware"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/service"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
)

const maxBodyBytes = 1 << 20

type envelope map[string]any

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", typeErr.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", typeErr.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return fmt.Errorf("body contains unknown key %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		case errors.As(err, &maxErr):
			return fmt.Errorf("body must not be larger than %d bytes", maxErr.Limit)
		default:
			return err
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	js, err := json.Marshal(data)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(js, '\n')); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to write response")
	}
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, envelope{"error": message})
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

// serviceError maps service sentinels to status codes. Anything unknown is
// logged and hidden behind a 500.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTeamNotFound),
		errors.Is(err, service.ErrCandidateNotFound),
		errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, service.ErrNoTeam),
		errors.Is(err, service.ErrNotQueued):
		errorResponse(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, service.ErrAlreadyQueued),
		errors.Is(err, service.ErrAlreadyInTeam),
		errors.Is(err, service.ErrInMatch),
		errors.Is(err, service.ErrInvitePending),
		errors.Is(err, service.ErrTeamNameExhausted):
		errorResponse(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, service.ErrDeserter),
		errors.Is(err, service.ErrLevelTooLow),
		errors.Is(err, service.ErrForbiddenTalents),
		errors.Is(err, service.ErrNotParticipant):
		errorResponse(w, r, http.StatusForbidden, err.Error())

	case errors.Is(err, service.ErrInvalidGroup):
		errorResponse(w, r, http.StatusBadRequest, err.Error())

	case errors.Is(err, service.ErrQueueDisabled):
		errorResponse(w, r, http.StatusServiceUnavailable, err.Error())

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, r, http.StatusInternalServerError, envelope{
			"error":      "the server encountered a problem and could not process your request",
			"request_id": middleware.GetRequestID(r.Context()),
		})
	}
}

func pathInt64(r *http.Request, key string) (int64, error) {
	v, err := cast.ToInt64E(chi.URLParam(r, key))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return v, nil
}

// queryInt returns def when the parameter is absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return v, nil
}

// queryFloat requires the parameter; cast reads "" as 0.
func queryFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return v, nil
}
