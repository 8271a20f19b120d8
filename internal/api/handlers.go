package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lora-node/lora-node-agent/internal/link"
)

// ========== Auth handlers ==========

// HandleLogin verifies the operator credential and issues tokens
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username != s.config.Auth.Username || !s.auth.VerifyPassword(req.Password, s.passwordHash) {
		s.log.Warn().Str("username", req.Username).Msg("login rejected")
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(req.Username)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accessToken, refreshToken, err := s.auth.RefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// ========== Node handlers ==========

// HandleHealth reports liveness
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"node":           s.config.Node.Name,
		"uptime_seconds": int(s.mgr.Uptime().Seconds()),
	})
}

// HandleLinkStatus reports the link state
func (s *RESTServer) HandleLinkStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"state":              s.mgr.State().String(),
		"connected":          s.mgr.Connected(),
		"join_retries":       s.mgr.JoinRetryCount(),
		"duty_cycle_percent": s.mgr.DutyCycle().UsagePercent(),
	}
	if addr := s.mgr.DevAddr(); addr != 0 {
		resp["dev_addr"] = fmt.Sprintf("%08X", addr)
	}
	if last := s.mgr.LastTransmission(); !last.IsZero() {
		resp["last_transmission"] = last.UTC().Format(time.RFC3339)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// HandleRejoin clears the join backoff and starts a reconnect
func (s *RESTServer) HandleRejoin(w http.ResponseWriter, r *http.Request) {
	s.mgr.ResetJoinBackoff()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.mgr.Rejoin(ctx); err != nil {
			s.log.Warn().Err(err).Msg("operator rejoin failed")
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "rejoining"})
}

// HandleDisconnect drops the link
func (s *RESTServer) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.mgr.Disconnect()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// HandleStats reports the traffic counters
func (s *RESTServer) HandleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"counters":           s.mgr.Stats().Snapshot(),
		"duty_cycle_percent": s.mgr.DutyCycle().UsagePercent(),
		"queue_depth":        s.proc.Queue().Len(),
		"queue_overflowed":   s.proc.Queue().Overflowed(),
	})
}

// HandleClearStats zeroes the counters
func (s *RESTServer) HandleClearStats(w http.ResponseWriter, r *http.Request) {
	s.mgr.ResetStatistics()
	s.proc.Queue().ClearOverflow()
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetSettings returns the runtime settings
func (s *RESTServer) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.mgr.Settings().Snapshot())
}

// HandleUpdateSettings applies a partial settings update
func (s *RESTServer) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransmitIntervalMs *uint32 `json:"transmit_interval_ms"`
		DataRate           *uint8  `json:"data_rate"`
		TxPowerDbm         *int8   `json:"tx_power_dbm"`
		ADREnabled         *bool   `json:"adr_enabled"`
		LEDEnabled         *bool   `json:"led_enabled"`
		AlarmEnabled       *bool   `json:"alarm_enabled"`
		MotionThreshold    *uint16 `json:"motion_threshold"`
		ObjectThreshold    *uint16 `json:"object_threshold"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	apply := func(err error) bool {
		if err == nil {
			return true
		}
		status := http.StatusInternalServerError
		if isInvalidParameter(err) {
			status = http.StatusBadRequest
		}
		s.respondError(w, status, err.Error())
		return false
	}

	if req.TransmitIntervalMs != nil && !apply(s.mgr.SetTransmitInterval(*req.TransmitIntervalMs)) {
		return
	}
	if req.DataRate != nil && !apply(s.mgr.SetDataRate(*req.DataRate)) {
		return
	}
	if req.TxPowerDbm != nil && !apply(s.mgr.SetTxPower(*req.TxPowerDbm)) {
		return
	}
	if req.ADREnabled != nil && !apply(s.mgr.SetADR(*req.ADREnabled)) {
		return
	}
	if req.LEDEnabled != nil {
		s.mgr.SetLED(*req.LEDEnabled)
	}
	if req.AlarmEnabled != nil {
		s.mgr.SetAlarm(*req.AlarmEnabled)
	}
	if req.MotionThreshold != nil || req.ObjectThreshold != nil {
		current := s.mgr.Settings().Snapshot()
		motion, object := current.MotionThreshold, current.ObjectThreshold
		if req.MotionThreshold != nil {
			motion = *req.MotionThreshold
		}
		if req.ObjectThreshold != nil {
			object = *req.ObjectThreshold
		}
		s.mgr.SetThresholds(motion, object)
	}

	s.respondJSON(w, http.StatusOK, s.mgr.Settings().Snapshot())
}

// HandleBattery reports the battery sample
func (s *RESTServer) HandleBattery(w http.ResponseWriter, r *http.Request) {
	if s.battery == nil {
		s.respondError(w, http.StatusNotFound, "no battery monitor")
		return
	}
	reading, err := s.battery.Read()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"voltage": reading.Voltage,
		"percent": reading.Percent,
		"low":     reading.Low(),
	})
}

// HandleInjectDownlink feeds a command frame into the downlink path
func (s *RESTServer) HandleInjectDownlink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Port    *uint8 `json:"port"`
		Payload string `json:"payload"` // hex
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload, err := hex.DecodeString(req.Payload)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "payload must be hex")
		return
	}

	port := link.PortCommand
	if req.Port != nil {
		port = *req.Port
	}

	s.proc.HandleDownlink(port, payload, 0)
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"port":   port,
		"size":   len(payload),
	})
}

// ========== History handlers ==========

// HandleListEvents lists recorded events, newest first
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	events, total, err := s.store.ListEventLogs(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// HandleListFrames lists recorded frames, newest first
func (s *RESTServer) HandleListFrames(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	frames, total, err := s.store.ListFrameLogs(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"frames": frames,
		"total":  total,
	})
}

// ========== Helpers ==========

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func isInvalidParameter(err error) bool {
	return errors.Is(err, link.ErrInvalidParameter)
}
