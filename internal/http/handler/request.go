package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	domainerrors "diary/internal/errors"
	"diary/internal/http/response"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domainerrors.Validation("request body is empty")
		}
		return domainerrors.Wrap(err, domainerrors.CodeValidation, "malformed JSON body")
	}
	return nil
}

// pathID parses the {id} URL parameter. Nothing can exist under a malformed
// id, so it is reported as not found.
func pathID(r *http.Request, notFound error) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, notFound
	}
	return id, nil
}

// fail writes err and logs it when it is about to become an opaque 500.
func fail(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if response.IsInternal(err) && log != nil {
		log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
	}
	response.Error(w, err)
}

func required(fields map[string]bool) error {
	details := map[string]string{}
	for name, present := range fields {
		if !present {
			details[name] = "is required"
		}
	}
	if len(details) > 0 {
		return domainerrors.ValidationWithDetails("validation failed", details)
	}
	return nil
}
