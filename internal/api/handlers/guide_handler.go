package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	"github.com/danghamo/tourguide/internal/api/middleware"
	"github.com/danghamo/tourguide/internal/app/service"
	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
)

// GuideSessions is the session registry the handler drives
type GuideSessions interface {
	Open(ctx context.Context, userID, routeID string) (*service.GuideRunner, error)
	Get(userID string) (*service.GuideRunner, error)
	Close(userID string)
	SetAudioGuide(ctx context.Context, userID string, enabled bool) error
}

// LocationSink accepts device location reports
type LocationSink interface {
	Push(userID string, fix guide.Fix) error
	Fail(userID string, err error)
}

// GuideHandler serves the guide.* methods
type GuideHandler struct {
	logger   *logger.Logger
	sessions GuideSessions
	location LocationSink
}

// NewGuideHandler creates a new guide handler
func NewGuideHandler(log *logger.Logger, sessions GuideSessions, location LocationSink) *GuideHandler {
	return &GuideHandler{
		logger:   log.WithComponent("guide-handler"),
		sessions: sessions,
		location: location,
	}
}

type StartGuideRequest struct {
	RouteID string `json:"route_id" validate:"required"`
}

type UpdateLocationRequest struct {
	Lat      float64   `json:"lat" validate:"latitude"`
	Lon      float64   `json:"lon" validate:"longitude"`
	Accuracy float64   `json:"accuracy,omitempty" validate:"gte=0"`
	Time     time.Time `json:"timestamp,omitempty"`
}

type LocationErrorRequest struct {
	Message string `json:"message"`
}

type SelectAttractionRequest struct {
	AttractionID string `json:"attraction_id" validate:"required"`
}

type SetAudioGuideRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// GuideStateResponse is the session as seen by clients
type GuideStateResponse = guide.Session

type StopGuideResponse struct {
	Closed bool `json:"closed"`
}

type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type AudioGuideResponse struct {
	Enabled bool `json:"enabled"`
}

// Start opens a guide session on a route
// @Summary Start a guide session
// @Description Opens (or returns) the caller's guide session for the route and starts location tracking
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[StartGuideRequest] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Failure 400 {object} jsonrpcx.ErrorResponse "Unknown route or invalid params"
// @Failure 401 {object} jsonrpcx.ErrorResponse "Authentication required"
// @Security BearerAuth
// @Router /api/v1/guide.Start [post]
func (h *GuideHandler) Start(w http.ResponseWriter, r *http.Request) {
	var params StartGuideRequest
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	runner, err := h.sessions.Open(r.Context(), userID, params.RouteID)
	if err != nil {
		h.logger.Warn("Failed to open guide session",
			zap.String("user_id", userID), zap.String("route_id", params.RouteID), zap.Error(err))
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	name, _ := middleware.GetUserName(r.Context())
	h.logger.Info("Guide session started",
		zap.String("user_id", userID), zap.String("user_name", name), zap.String("route_id", params.RouteID))
	jsonrpcx.Success(w, req.ID, runner.Snapshot())
}

// Stop closes the caller's guide session
// @Summary Stop the guide session
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[StopGuideResponse]
// @Security BearerAuth
// @Router /api/v1/guide.Stop [post]
func (h *GuideHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var params EmptyParams
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	h.sessions.Close(userID)
	jsonrpcx.Success(w, req.ID, StopGuideResponse{Closed: true})
}

// State returns the current session
// @Summary Get guide session state
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.State [post]
func (h *GuideHandler) State(w http.ResponseWriter, r *http.Request) {
	var params EmptyParams
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	runner, err := h.sessions.Get(userID)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	jsonrpcx.Success(w, req.ID, runner.Snapshot())
}

// UpdateLocation reports a device fix
// @Summary Report a location fix
// @Description Fixes arriving faster than the sampling interval are dropped
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[UpdateLocationRequest] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[AcceptedResponse]
// @Security BearerAuth
// @Router /api/v1/guide.UpdateLocation [post]
func (h *GuideHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var params UpdateLocationRequest
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	fix := guide.Fix{
		Coordinate: shared.Coordinate{Lat: params.Lat, Lon: params.Lon},
		Accuracy:   params.Accuracy,
		Timestamp:  params.Time,
	}
	if err := h.location.Push(userID, fix); err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	jsonrpcx.Success(w, req.ID, AcceptedResponse{Accepted: true})
}

// LocationError reports that the device cannot provide location
// @Summary Report a location failure
// @Description Ends the location stream; call guide.RestartLocation once the device recovers
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[LocationErrorRequest] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[AcceptedResponse]
// @Security BearerAuth
// @Router /api/v1/guide.LocationError [post]
func (h *GuideHandler) LocationError(w http.ResponseWriter, r *http.Request) {
	var params LocationErrorRequest
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	var cause error
	if params.Message != "" {
		cause = shared.NewDomainError(shared.ErrCodeLocationUnavailable, params.Message)
	}
	h.location.Fail(userID, cause)
	jsonrpcx.Success(w, req.ID, AcceptedResponse{Accepted: true})
}

// RestartLocation resubscribes the session to location updates
// @Summary Restart location tracking
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[AcceptedResponse]
// @Security BearerAuth
// @Router /api/v1/guide.RestartLocation [post]
func (h *GuideHandler) RestartLocation(w http.ResponseWriter, r *http.Request) {
	var params EmptyParams
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	runner, err := h.sessions.Get(userID)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	runner.RestartLocation()
	jsonrpcx.Success(w, req.ID, AcceptedResponse{Accepted: true})
}

// Select opens an attraction card by hand
// @Summary Open an attraction card
// @Description Manual cards are not closed by location changes and do not autoplay
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[SelectAttractionRequest] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.Select [post]
func (h *GuideHandler) Select(w http.ResponseWriter, r *http.Request) {
	var params SelectAttractionRequest
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	runner, err := h.sessions.Get(userID)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	attraction, found := route.Find(runner.Snapshot().Attractions, params.AttractionID)
	if !found {
		jsonrpcx.WithDomainError(r, req.ID, shared.ErrNotFoundf("attraction "+params.AttractionID))
		return
	}
	h.apply(w, r, req, runner, guide.AttractionSelected{Attraction: attraction})
}

// Dismiss closes the attraction card and stops its audio
// @Summary Close the attraction card
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.Dismiss [post]
func (h *GuideHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, guide.CardDismissed{})
}

// Play starts or resumes the card's narration
// @Summary Play narration
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.Play [post]
func (h *GuideHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, guide.PlayRequested{})
}

// Pause pauses the narration
// @Summary Pause narration
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.Pause [post]
func (h *GuideHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, guide.PauseRequested{})
}

// Resume continues paused narration
// @Summary Resume narration
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.Resume [post]
func (h *GuideHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, guide.ResumeRequested{})
}

// Restart plays the card's narration from the beginning
// @Summary Restart narration
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.Restart [post]
func (h *GuideHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, guide.RestartRequested{})
}

// StopAudio stops narration and keeps the card open
// @Summary Stop narration
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[GuideStateResponse]
// @Security BearerAuth
// @Router /api/v1/guide.StopAudio [post]
func (h *GuideHandler) StopAudio(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, guide.StopRequested{})
}

// SetAudioGuide turns automatic narration on or off and stores the choice
// @Summary Toggle the audio guide
// @Tags guide
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[SetAudioGuideRequest] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[AudioGuideResponse]
// @Security BearerAuth
// @Router /api/v1/guide.SetAudioGuide [post]
func (h *GuideHandler) SetAudioGuide(w http.ResponseWriter, r *http.Request) {
	var params SetAudioGuideRequest
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	if err := h.sessions.SetAudioGuide(r.Context(), userID, *params.Enabled); err != nil {
		h.logger.Warn("Failed to set audio guide preference", zap.String("user_id", userID), zap.Error(err))
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	jsonrpcx.Success(w, req.ID, AudioGuideResponse{Enabled: *params.Enabled})
}

// control applies a parameterless event to the caller's session
func (h *GuideHandler) control(w http.ResponseWriter, r *http.Request, e guide.Event) {
	var params EmptyParams
	userID, req, ok := begin(r, &params)
	if !ok {
		return
	}

	runner, err := h.sessions.Get(userID)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	h.apply(w, r, req, runner, e)
}

func (h *GuideHandler) apply(w http.ResponseWriter, r *http.Request, req *jsonrpcx.JSONRPCRequest, runner *service.GuideRunner, e guide.Event) {
	s, err := runner.Apply(r.Context(), e)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	h.logger.Debug("Guide event applied",
		zap.String("session_id", s.ID),
		zap.String("event", guide.EventName(e)),
		zap.Uint64("version", s.Version))
	jsonrpcx.Success(w, req.ID, s)
}
