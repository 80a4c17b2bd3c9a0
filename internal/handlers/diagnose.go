package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/advisor"
)

// maxImageBytes caps a diagnosis upload.
const maxImageBytes = 5 << 20

// Diagnoser reads a photo of a vehicle.
type Diagnoser interface {
	DiagnoseImage(ctx context.Context, image []byte, description string) (advisor.Diagnosis, error)
}

// DiagnosisResponse is the result of POST /api/vehicles/{id}/diagnose.
// Fallback is set when the model answered but not in the expected format.
type DiagnosisResponse struct {
	VehicleID string            `json:"vehicle_id"`
	Diagnosis advisor.Diagnosis `json:"diagnosis"`
	Fallback  bool              `json:"fallback"`
}

// WithDiagnoser enables image diagnosis.
func (h *VehicleHandler) WithDiagnoser(d Diagnoser) *VehicleHandler {
	h.diagnoser = d
	return h
}

// Diagnose handles POST /api/vehicles/{id}/diagnose. The body is
// multipart/form-data with an "image" file and an optional "description".
func (h *VehicleHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	if h.diagnoser == nil {
		writeError(w, http.StatusServiceUnavailable, "diagnosis is not configured")
		return
	}
	vehicle, ok := h.authorizedVehicle(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+64<<10)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with an image")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(image) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image is too large")
		return
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "image is empty")
		return
	}

	description := fmt.Sprintf("%s at %d miles.", vehicle.DisplayName(), vehicle.CurrentMileage)
	if d := strings.TrimSpace(r.FormValue("description")); d != "" {
		description += " " + d
	}

	logger := log.WithField("vehicle_id", vehicle.ID.Hex())
	resp := DiagnosisResponse{VehicleID: vehicle.ID.Hex()}
	diagnosis, err := h.diagnoser.DiagnoseImage(r.Context(), image, description)
	var perr *advisor.ParseError
	switch {
	case err == nil:
		resp.Diagnosis = diagnosis
	case errors.As(err, &perr):
		logger.WithError(err).Warn("Diagnosis unparseable, returning raw analysis")
		resp.Diagnosis, resp.Fallback = advisor.FallbackDiagnosis(perr.Raw), true
	case errors.Is(err, advisor.ErrUnsupportedImage):
		writeError(w, http.StatusUnsupportedMediaType, "image must be JPEG, PNG, GIF or WebP")
		return
	case errors.Is(err, advisor.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "diagnosis is not configured")
		return
	default:
		logger.WithError(err).Error("Diagnosis failed")
		writeError(w, http.StatusBadGateway, "diagnosis failed")
		return
	}

	logger.WithField("urgency", resp.Diagnosis.Urgency).Info("Image diagnosed")
	writeJSON(w, http.StatusOK, resp)
}
