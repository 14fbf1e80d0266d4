package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/ranking"
	"github.com/smiletrip/smilecoin/internal/registration"
)

type transferRequest struct {
	UserID       int64 `json:"user_id" validate:"required,gt=0"`
	RestaurantID int64 `json:"restaurant_id" validate:"required,gt=0"`
	Amount       int   `json:"amount" validate:"required,min=1,max=3"`
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	transfer, err := s.recorder.Record(r.Context(), req.UserID, req.RestaurantID, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, transfer)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	decision, err := s.guard.Validate(r.Context(), req.UserID, req.RestaurantID, req.Amount, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, decision)
}

type registerUserRequest struct {
	OriginCountry string    `json:"origin_country" validate:"required,iso3166_1_alpha2"`
	ArrivalDate   time.Time `json:"arrival_date" validate:"required"`
	DepartureDate time.Time `json:"departure_date" validate:"required"`
	WalletAddress string    `json:"wallet_address" validate:"required"`
}

type registerRestaurantRequest struct {
	PlaceRef      string  `json:"place_ref" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	Address       string  `json:"address"`
	Lat           float64 `json:"lat" validate:"min=-90,max=90"`
	Lng           float64 `json:"lng" validate:"min=-180,max=180"`
	WalletAddress string  `json:"wallet_address" validate:"required"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.registration.RegisterUser(r.Context(), registration.UserInput{
		OriginCountry: req.OriginCountry,
		ArrivalDate:   req.ArrivalDate,
		DepartureDate: req.DepartureDate,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}

	user, err := s.registration.GetUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleRegisterRestaurant(w http.ResponseWriter, r *http.Request) {
	var req registerRestaurantRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	restaurant, err := s.registration.RegisterRestaurant(r.Context(), registration.RestaurantInput{
		PlaceRef:      req.PlaceRef,
		Name:          req.Name,
		Address:       req.Address,
		Lat:           req.Lat,
		Lng:           req.Lng,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, restaurant)
}

func (s *Server) handleOverallRanking(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	geo, err := geoParams(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.rankings.Overall(r.Context(), page, limit, geo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOriginRanking(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	geo, err := geoParams(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.rankings.ByOrigin(r.Context(), chi.URLParam(r, "country"), page, limit, geo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNearbyRanking(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	geo, err := geoParams(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.rankings.Nearby(r.Context(), geo.Lat, geo.Lng, geo.RadiusKm, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRankingRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.rankings.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}

	summary, err := s.eligibility.Summary(r.Context(), userID, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleIssueVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}

	v, err := s.vouchers.Issue(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}

	v, err := s.vouchers.Get(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRestaurantStats(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := s.pathID(w, r, "restaurantID")
	if !ok {
		return
	}

	stats, err := s.rankings.Stats(r.Context(), restaurantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Check(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, report)
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("malformed request body"))
		return false
	}

	if err := s.validate.Struct(dest); err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return false
	}

	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, apperrors.NewValidationError(name+" must be a positive integer"))
		return 0, false
	}

	return id, true
}

func pageParams(r *http.Request) (page, limit int) {
	page, limit = 1, 20

	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	return page, limit
}

func geoParams(r *http.Request, required bool) (*ranking.GeoFilter, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" && q.Get("lng") == "" && q.Get("radius_km") == "" {
		if required {
			return nil, apperrors.NewValidationError("lat, lng and radius_km are required")
		}
		return nil, nil
	}

	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	radius, radiusErr := strconv.ParseFloat(q.Get("radius_km"), 64)
	if latErr != nil || lngErr != nil || radiusErr != nil {
		return nil, apperrors.NewValidationError("lat, lng and radius_km must be numbers")
	}

	return &ranking.GeoFilter{Lat: lat, Lng: lng, RadiusKm: radius}, nil
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Quota   *apperrors.QuotaFigures `json:"quota,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Code: "E000"}
	body.Message, _ = s.errs.Handle(r.Context(), err)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr != nil {
		body.Code = appErr.Code
		body.Quota = appErr.Quota

		switch appErr.Code {
		case apperrors.CodeValidation:
			status = http.StatusBadRequest
		case apperrors.CodeNotFound:
			status = http.StatusNotFound
		case apperrors.CodeQuotaExceeded:
			status = http.StatusUnprocessableEntity
		case apperrors.CodeConflict:
			status = http.StatusConflict
		case apperrors.CodeNotEligible:
			status = http.StatusForbidden
		case apperrors.CodeCache, apperrors.CodeDatabase:
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, errorResponse{Error: body})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("response encoding failed", "error", err)
	}
}
