package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/control"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error     codec.ErrorDocument `json:"error"`
	RequestID string              `json:"request_id"`
}

// writeError renders err as an error document. Malformed input is a 400,
// a daemon failure a 502.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var cmdErr *control.CommandError
	switch {
	case errors.Is(err, codec.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.As(err, &cmdErr):
		status = http.StatusBadGateway
	}
	if status != http.StatusBadRequest {
		s.logger.Warn("api request failed", "path", r.URL.Path, "request_id", r.Header.Get("X-Request-ID"), "err", err)
	}
	s.writeJSON(w, status, errorResponse{
		Error:     control.ErrorDocument(err),
		RequestID: r.Header.Get("X-Request-ID"),
	})
}

// readDocument decodes a JSON request body into a document.
func readDocument(w http.ResponseWriter, r *http.Request) (codec.Document, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", codec.ErrInvalidInput, err)
	}
	return codec.UnmarshalDocument(data, codec.FormatJSON)
}

// pathID parses a decimal or 0x-prefixed hex path segment.
func pathID(r *http.Request, name string) (int32, error) {
	v := r.PathValue(name)
	n, err := strconv.ParseInt(v, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", codec.ErrInvalidInput, name, v)
	}
	return int32(n), nil
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.cmd.Devices()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleAPILocalDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.cmd.LocalDevice(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleAPILevelControl(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "node")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	endpointID, err := pathID(r, "ep")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := readDocument(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.cmd.LevelControl(r.Context(), nodeID, endpointID, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIRegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ep, err := s.cmd.RegisterEndpoint(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ep)
}

type permitJoinRequest struct {
	Duration int `json:"duration"`
}

func (s *Server) handleAPIPermitJoin(w http.ResponseWriter, r *http.Request) {
	var req permitJoinRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", codec.ErrInvalidInput, err))
		return
	}

	if err := s.cmd.PermitJoin(r.Context(), req.Duration); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "duration": req.Duration})
}

func (s *Server) handleAPIDiscover(w http.ResponseWriter, r *http.Request) {
	if err := s.cmd.Discover(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// ZDO requests answer asynchronously with ieee_addr / simple_desc envelopes
// on the stream.

func (s *Server) handleAPIRequestIEEE(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "node")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cmd.RequestIEEE(r.Context(), nodeID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleAPIRequestSimpleDesc(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "node")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	endpointID, err := pathID(r, "ep")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cmd.RequestSimpleDesc(r.Context(), nodeID, endpointID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
