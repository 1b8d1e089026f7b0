package statusapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// APIHandler obsluhuje REST endpointy nad Service.
type APIHandler struct {
	svc    *Service
	logger *slog.Logger
}

func NewAPIHandler(svc *Service, logger *slog.Logger) *APIHandler {
	return &APIHandler{svc: svc, logger: logger}
}

// RegisterRoutes mapuje URL cesty na handlery.
func (h *APIHandler) RegisterRoutes(r *mux.Router) {
	// seznam zón (dashboard)
	r.HandleFunc("/api/zones", h.handleListZones).Methods(http.MethodGet)

	// historie jedné zóny (graf), ?range=24h
	r.HandleFunc("/api/zones/{building}/{zone}/history", h.handleGetHistory).Methods(http.MethodGet)
}

// handleListZones: GET /api/zones
func (h *APIHandler) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.svc.Zones(r.Context())
	if err != nil {
		h.logger.Error("Chyba při získávání zón", "error", err)
		http.Error(w, "Interní chyba serveru", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, zones)
}

// handleGetHistory: GET /api/zones/{building}/{zone}/history?range=24h
func (h *APIHandler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	building, zone := vars["building"], vars["zone"]

	rangeParam := r.URL.Query().Get("range")
	if rangeParam == "" {
		rangeParam = "24h"
	}

	points, err := h.svc.History(r.Context(), building, zone, rangeParam)
	if errors.Is(err, ErrBadRange) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("Chyba při získávání historie", "building", building, "zone", zone, "error", err)
		http.Error(w, "Chyba při načítání dat", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, points)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Chyba při zápisu JSON odpovědi", "error", err)
	}
}
