package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/carbuddy/internal/agent"
	"github.com/ukydev/carbuddy/internal/db"
	"github.com/ukydev/carbuddy/internal/maintenance"
	"github.com/ukydev/carbuddy/internal/middleware"
	"github.com/ukydev/carbuddy/internal/models"
	"github.com/ukydev/carbuddy/internal/places"
)

const maxBodyBytes = 1 << 20

// VehicleHandler serves maintenance status, service records, odometer
// updates and shop lookups for a single vehicle.
type VehicleHandler struct {
	vehicles    db.VehicleCollection
	maintenance db.MaintenanceCollection
	users       db.UserCollection
	catalog     maintenance.Catalog
	shops       agent.ShopFinder
	diagnoser   Diagnoser
	radiusMiles float64
	now         func() time.Time
}

// NewVehicleHandler creates a vehicle handler. shops may be nil when no Maps
// key is configured.
func NewVehicleHandler(store *db.Store, catalog maintenance.Catalog, shops agent.ShopFinder, radiusMiles float64) *VehicleHandler {
	return &VehicleHandler{
		vehicles:    store.Vehicles,
		maintenance: store.Maintenance,
		users:       store.Users,
		catalog:     catalog,
		shops:       shops,
		radiusMiles: radiusMiles,
		now:         time.Now,
	}
}

// StatusResponse is the full per-service report for a vehicle.
type StatusResponse struct {
	VehicleID      string                          `json:"vehicle_id"`
	CurrentMileage int                             `json:"current_mileage"`
	EvaluatedAt    time.Time                       `json:"evaluated_at"`
	Services       []maintenance.ServiceReportItem `json:"services"`
}

// RecommendationsResponse lists the items that need attention.
type RecommendationsResponse struct {
	VehicleID       string                       `json:"vehicle_id"`
	CurrentMileage  int                          `json:"current_mileage"`
	EvaluatedAt     time.Time                    `json:"evaluated_at"`
	Recommendations []maintenance.Recommendation `json:"recommendations"`
}

// RecordServiceRequest is the body of POST /api/vehicles/{id}/maintenance.
type RecordServiceRequest struct {
	ServiceType      string     `json:"service_type"`
	DatePerformed    *time.Time `json:"date_performed,omitempty"`
	MileageAtService int        `json:"mileage_at_service"`
	Cost             float64    `json:"cost"`
	ShopName         string     `json:"shop_name"`
	Notes            string     `json:"notes"`
}

// ShopsResponse lists ranked shops near the owner.
type ShopsResponse struct {
	ServiceType string          `json:"service_type"`
	Location    models.Location `json:"location"`
	RadiusMiles float64         `json:"radius_miles"`
	Shops       []places.Shop   `json:"shops"`
}

// Status handles GET /api/vehicles/{id}/maintenance/status.
func (h *VehicleHandler) Status(w http.ResponseWriter, r *http.Request) {
	vehicle, ok := h.authorizedVehicle(w, r)
	if !ok {
		return
	}
	records, ok := h.history(w, r, vehicle)
	if !ok {
		return
	}

	now := h.now().UTC()
	report, err := maintenance.Report(agent.Snapshot(*vehicle), records, h.catalog, now)
	if err != nil {
		h.evaluationError(w, vehicle, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		VehicleID:      vehicle.ID.Hex(),
		CurrentMileage: vehicle.CurrentMileage,
		EvaluatedAt:    now,
		Services:       report,
	})
}

// Recommendations handles GET /api/vehicles/{id}/maintenance/recommendations.
func (h *VehicleHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	vehicle, ok := h.authorizedVehicle(w, r)
	if !ok {
		return
	}
	records, ok := h.history(w, r, vehicle)
	if !ok {
		return
	}

	now := h.now().UTC()
	recs, err := maintenance.Aggregate(agent.Snapshot(*vehicle), records, h.catalog, now)
	if err != nil {
		h.evaluationError(w, vehicle, err)
		return
	}

	writeJSON(w, http.StatusOK, RecommendationsResponse{
		VehicleID:       vehicle.ID.Hex(),
		CurrentMileage:  vehicle.CurrentMileage,
		EvaluatedAt:     now,
		Recommendations: recs,
	})
}

// RecordService handles POST /api/vehicles/{id}/maintenance.
func (h *VehicleHandler) RecordService(w http.ResponseWriter, r *http.Request) {
	vehicle, ok := h.authorizedVehicle(w, r)
	if !ok {
		return
	}

	var req RecordServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.ServiceType = strings.TrimSpace(req.ServiceType)
	if _, err := h.catalog.Lookup(req.ServiceType); err != nil {
		writeError(w, http.StatusBadRequest, "unknown service_type")
		return
	}
	if req.MileageAtService < 0 {
		writeError(w, http.StatusBadRequest, "mileage_at_service must not be negative")
		return
	}
	if req.Cost < 0 {
		writeError(w, http.StatusBadRequest, "cost must not be negative")
		return
	}

	now := h.now().UTC()
	performed := now
	if req.DatePerformed != nil {
		performed = req.DatePerformed.UTC()
		if performed.After(now) {
			writeError(w, http.StatusBadRequest, "date_performed is in the future")
			return
		}
	}

	record := models.ServiceRecord{
		VehicleID:        vehicle.ID,
		ServiceType:      req.ServiceType,
		DatePerformed:    performed,
		MileageAtService: req.MileageAtService,
		Cost:             req.Cost,
		ShopName:         req.ShopName,
		Notes:            req.Notes,
		CreatedAt:        now,
	}

	id, err := h.maintenance.InsertRecord(r.Context(), record)
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicle.ID.Hex()).Error("Failed to insert service record")
		writeError(w, http.StatusInternalServerError, "failed to record service")
		return
	}
	record.ID = id

	// A service logged past the odometer reading moves the odometer forward.
	if record.MileageAtService > vehicle.CurrentMileage {
		if err := h.vehicles.UpdateMileage(r.Context(), vehicle.ID.Hex(), record.MileageAtService); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"vehicle_id": vehicle.ID.Hex(),
				"mileage":    record.MileageAtService,
			}).Warn("Failed to advance vehicle mileage")
		}
	}

	log.WithFields(log.Fields{
		"vehicle_id":   vehicle.ID.Hex(),
		"service_type": record.ServiceType,
		"mileage":      record.MileageAtService,
	}).Info("Service recorded")
	writeJSON(w, http.StatusCreated, record)
}

// UpdateMileage handles POST /api/vehicles/{id}/mileage.
func (h *VehicleHandler) UpdateMileage(w http.ResponseWriter, r *http.Request) {
	vehicle, ok := h.authorizedVehicle(w, r)
	if !ok {
		return
	}

	var reading models.MileageReading
	if !decodeBody(w, r, &reading) {
		return
	}
	if reading.Mileage < 0 {
		writeError(w, http.StatusBadRequest, "mileage must not be negative")
		return
	}

	err := h.vehicles.UpdateMileage(r.Context(), vehicle.ID.Hex(), reading.Mileage)
	switch {
	case errors.Is(err, db.ErrMileageRegression):
		writeError(w, http.StatusConflict, "mileage is below the current odometer reading")
		return
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "vehicle not found")
		return
	case err != nil:
		log.WithError(err).WithField("vehicle_id", vehicle.ID.Hex()).Error("Failed to update mileage")
		writeError(w, http.StatusInternalServerError, "failed to update mileage")
		return
	}

	vehicle.CurrentMileage = reading.Mileage
	writeJSON(w, http.StatusOK, vehicle)
}

// Shops handles GET /api/vehicles/{id}/shops?service_type=.
func (h *VehicleHandler) Shops(w http.ResponseWriter, r *http.Request) {
	if h.shops == nil {
		writeError(w, http.StatusServiceUnavailable, "shop search is not configured")
		return
	}
	vehicle, ok := h.authorizedVehicle(w, r)
	if !ok {
		return
	}

	serviceType := r.URL.Query().Get("service_type")
	if serviceType == "" {
		serviceType = maintenance.OilChange
	}
	if _, err := h.catalog.Lookup(serviceType); err != nil {
		writeError(w, http.StatusBadRequest, "unknown service_type")
		return
	}

	loc, radius := agent.DefaultLocation, h.radiusMiles
	owner, err := h.users.FindUserByID(r.Context(), vehicle.OwnerID.Hex())
	if err != nil {
		log.WithError(err).WithField("owner_id", vehicle.OwnerID.Hex()).Warn("Owner lookup failed, using default location")
	} else {
		if owner.HomeLocation != nil && !owner.HomeLocation.IsZero() {
			loc = *owner.HomeLocation
		}
		if prefs := owner.EffectivePreferences(); prefs.MaxTravelMiles < radius {
			radius = prefs.MaxTravelMiles
		}
	}

	shops, err := h.shops.FindNearby(r.Context(), loc, serviceType, radius)
	if err != nil {
		log.WithError(err).WithField("service_type", serviceType).Error("Shop search failed")
		writeError(w, http.StatusBadGateway, "shop search failed")
		return
	}

	writeJSON(w, http.StatusOK, ShopsResponse{
		ServiceType: serviceType,
		Location:    loc,
		RadiusMiles: radius,
		Shops:       places.Rank(shops),
	})
}

// authorizedVehicle loads the vehicle named in the path and checks that the
// caller owns it. Admins may read any vehicle.
func (h *VehicleHandler) authorizedVehicle(w http.ResponseWriter, r *http.Request) (*models.Vehicle, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user context not found")
		return nil, false
	}

	id := r.PathValue("id")
	if !primitive.IsValidObjectID(id) {
		writeError(w, http.StatusBadRequest, "invalid vehicle id")
		return nil, false
	}

	vehicle, err := h.vehicles.FindVehicleByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "vehicle not found")
		return nil, false
	}
	if err != nil {
		log.WithError(err).WithField("vehicle_id", id).Error("Failed to load vehicle")
		writeError(w, http.StatusInternalServerError, "failed to load vehicle")
		return nil, false
	}

	if claims.Role != models.RoleAdmin && vehicle.OwnerID.Hex() != claims.UserID {
		// Non-owners get the same 404 as a missing vehicle.
		writeError(w, http.StatusNotFound, "vehicle not found")
		return nil, false
	}
	return vehicle, true
}

func (h *VehicleHandler) history(w http.ResponseWriter, r *http.Request, vehicle *models.Vehicle) ([]maintenance.ServiceRecord, bool) {
	history, err := h.maintenance.FindHistory(r.Context(), vehicle.ID.Hex())
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicle.ID.Hex()).Error("Failed to load maintenance history")
		writeError(w, http.StatusInternalServerError, "failed to load maintenance history")
		return nil, false
	}
	return agent.ToServiceRecords(history), true
}

func (h *VehicleHandler) evaluationError(w http.ResponseWriter, vehicle *models.Vehicle, err error) {
	if errors.Is(err, maintenance.ErrMileageRegression) || errors.Is(err, maintenance.ErrServiceInFuture) {
		log.WithError(err).WithField("vehicle_id", vehicle.ID.Hex()).Warn("Inconsistent maintenance data")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	log.WithError(err).WithField("vehicle_id", vehicle.ID.Hex()).Error("Maintenance evaluation failed")
	writeError(w, http.StatusInternalServerError, "evaluation failed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// Health handles GET /health.
func Health(ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "database": "ok"}
		code := http.StatusOK
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				log.WithError(err).Warn("Health check: database unreachable")
				status["status"], status["database"] = "degraded", "unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, status)
	}
}
