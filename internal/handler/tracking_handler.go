// internal/handler/tracking_handler.go
package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// transparentPNG is a 1x1 fully transparent PNG.
var transparentPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

// TrackingHandler serves the public open pixel and click redirect. The pixel is always served;
// clicks redirect only for known tokens.
type TrackingHandler struct {
	Tracking *service.TrackingService
	Log      zerolog.Logger
}

func NewTrackingHandler(tracking *service.TrackingService, log zerolog.Logger) *TrackingHandler {
	return &TrackingHandler{Tracking: tracking, Log: log.With().Str("component", "tracking_http").Logger()}
}

func (h *TrackingHandler) Pixel(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracking.RecordOpen(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.Log.Error().Err(err).Msg("record open")
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(transparentPNG)))
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentPNG)
}

func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	target, err := h.Tracking.RecordClick(r.Context(), chi.URLParam(r, "token"), r.URL.Query().Get("url"))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case appErrors.IsValidation(err):
			status = http.StatusBadRequest
		case appErrors.IsNotFound(err):
			status = http.StatusNotFound
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
