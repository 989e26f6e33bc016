// Package controlapi exposes the approver over a small local JSON api so an external UI can
// list pending requests, approve them and toggle polling.
package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"showroom-approver/internal/approver"
	"showroom-approver/internal/components/assert"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/internal/scrapers/showroom"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	report_controlapi_request = "controlapi.request"
	report_controlapi_encode  = "controlapi.encode"
)

// Approver is the part of approver.Service the api drives.
type Approver interface {
	ScanOnce(ctx context.Context, roomFilter string) (showroom.ScanResult, error)
	ApproveRoom(ctx context.Context, roomId, eventId string) ([]showroom.ApprovalOutcome, error)
	StartPolling(ctx context.Context, interval time.Duration) error
	StopPolling() bool
	PollingStatus() approver.SchedulerStatus
}

type Server struct {
	svc Approver
	tel telemetry.API
	// base outlives requests, polling started over http runs until it is cancelled.
	base context.Context
}

func NewServer(base context.Context, svc Approver, tel telemetry.API) Server {
	assert.NotNil(base)
	assert.NotNil(svc)
	assert.NotNil(tel)
	return Server{
		svc:  svc,
		tel:  telemetry.NewScopedAPI("controlapi", tel),
		base: base,
	}
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/approvals", func(r chi.Router) {
		r.Get("/", s.listApprovals)
		r.Post("/approve", s.approve)
	})
	r.Route("/polling", func(r chi.Router) {
		r.Get("/", s.pollingStatus)
		r.Post("/start", s.startPolling)
		r.Post("/stop", s.stopPolling)
	})
	return r
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type listResponse struct {
	TokenFound bool                      `json:"token_found"`
	Forms      int                       `json:"forms"`
	Skipped    int                       `json:"skipped"`
	Records    []showroom.ApprovalRecord `json:"records"`
}

type approveRequest struct {
	RoomId  string `json:"room_id"`
	EventId string `json:"event_id"`
}

type approveResponse struct {
	Outcomes []showroom.ApprovalOutcome `json:"outcomes"`
	Error    string                     `json:"error,omitempty"`
}

type startRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

type stopResponse struct {
	Stopped bool `json:"stopped"`
}

func (s Server) writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.tel.ReportWarning(report_controlapi_encode, err)
	}
}

// writeError maps the error taxonomy onto status codes.
func (s Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Error: err.Error()}

	var invalidSession *showroom.SessionInvalidError
	var invalidRoom *approver.InvalidRoomIdError
	var invalidEvent *approver.InvalidEventIdError
	var transport *showroom.TransportError
	switch {
	case errors.As(err, &invalidSession):
		status = http.StatusUnauthorized
		body.Reason = invalidSession.Reason.String()
	case errors.Is(err, showroom.ErrLoginRequired):
		status = http.StatusUnauthorized
	case errors.As(err, &invalidRoom), errors.As(err, &invalidEvent):
		status = http.StatusBadRequest
	case errors.Is(err, approver.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.As(err, &transport):
		status = http.StatusBadGateway
	}

	if status >= 500 {
		s.tel.ReportBroken(report_controlapi_request, r.Method, r.URL.Path, err)
	} else {
		s.tel.ReportWarning(report_controlapi_request, r.Method, r.URL.Path, err)
	}
	s.writeJson(w, status, body)
}

func (s Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(out)
	if err != nil {
		s.writeJson(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.ScanOnce(r.Context(), r.URL.Query().Get("room"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records := result.Records
	if records == nil {
		records = []showroom.ApprovalRecord{}
	}
	s.writeJson(w, http.StatusOK, listResponse{
		TokenFound: result.Token != "",
		Forms:      result.Forms,
		Skipped:    len(result.Skipped),
		Records:    records,
	})
}

func (s Server) approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RoomId == "" {
		s.writeJson(w, http.StatusBadRequest, errorResponse{Error: "room_id is required"})
		return
	}

	outcomes, err := s.svc.ApproveRoom(r.Context(), req.RoomId, req.EventId)
	if err != nil && len(outcomes) == 0 {
		s.writeError(w, r, err)
		return
	}

	res := approveResponse{Outcomes: outcomes}
	status := http.StatusOK
	if err != nil {
		// some records went through before the session died
		res.Error = err.Error()
		status = http.StatusUnauthorized
	}
	s.writeJson(w, status, res)
}

func (s Server) startPolling(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.IntervalSeconds < 0 {
		s.writeJson(w, http.StatusBadRequest, errorResponse{Error: "interval_seconds must not be negative"})
		return
	}

	err := s.svc.StartPolling(s.base, time.Duration(req.IntervalSeconds)*time.Second)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJson(w, http.StatusOK, s.svc.PollingStatus())
}

func (s Server) stopPolling(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, stopResponse{Stopped: s.svc.StopPolling()})
}

func (s Server) pollingStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.svc.PollingStatus())
}
