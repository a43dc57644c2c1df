package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"zigbee-relay/internal/node"
	"zigbee-relay/internal/store"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

type relayView struct {
	Channel  int    `json:"channel"`
	Endpoint string `json:"endpoint"`
	On       bool   `json:"on"`
}

type relaysResponse struct {
	IEEEAddress  string      `json:"ieee_address"`
	ShortAddress string      `json:"short_address"`
	Mask         string      `json:"mask"`
	Relays       []relayView `json:"relays"`
}

func (s *Server) handleAPIRelays(w http.ResponseWriter, r *http.Request) {
	cfg := s.node.Config()
	state := s.node.Snapshot()
	id := s.node.Identity()

	resp := relaysResponse{
		IEEEAddress:  id.IEEE.String(),
		ShortAddress: fmt.Sprintf("0x%04X", id.Short),
		Mask:         state.String(),
		Relays:       make([]relayView, 0, cfg.RelayCount),
	}
	for ch := 0; ch < cfg.RelayCount; ch++ {
		resp.Relays = append(resp.Relays, relayView{
			Channel:  ch,
			Endpoint: fmt.Sprintf("0x%02X", cfg.Endpoint(ch)),
			On:       state.On(ch),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type setRelayRequest struct {
	State string `json:"state"`
}

func (s *Server) handleAPISetRelay(w http.ResponseWriter, r *http.Request) {
	ch, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid channel"})
		return
	}

	var req setRelayRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var on bool
	switch strings.ToUpper(req.State) {
	case "ON":
		on = true
	case "OFF":
	default:
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "state must be ON or OFF"})
		return
	}

	if err := s.node.SetRelay(ch, on); err != nil {
		switch {
		case errors.Is(err, node.ErrChannelRange):
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such relay"})
		case errors.Is(err, node.ErrQueueFull):
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "command queue full"})
		default:
			s.logger.Error("set relay", "err", err, "channel", ch)
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	// The dispatcher applies the command asynchronously.
	s.writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "channel": ch, "on": on})
}

type journalResponse struct {
	Entries  []*store.Entry    `json:"entries"`
	Counters map[string]uint64 `json:"counters"`
}

func (s *Server) handleAPIJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.logger.Error("read journal", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	counters, err := s.journal.Counters()
	if err != nil {
		s.logger.Error("read journal counters", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, journalResponse{Entries: entries, Counters: counters})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
