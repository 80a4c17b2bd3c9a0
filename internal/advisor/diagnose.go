package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
)

// ErrUnsupportedImage is returned for uploads that are not JPEG, PNG, GIF or WebP.
var ErrUnsupportedImage = errors.New("advisor: unsupported image type")

// DefaultUrgency is used when the model leaves urgency out, and by FallbackDiagnosis.
const DefaultUrgency = 5

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageCompleter is a Completer that also accepts one image with the prompt.
type ImageCompleter interface {
	CompleteImage(ctx context.Context, system, prompt string, image []byte, mediaType string) (string, error)
}

// Diagnosis is the model's reading of a photo of the vehicle.
type Diagnosis struct {
	Analysis        string   `json:"analysis"`
	IssuesFound     []string `json:"issues_found"`
	Recommendations []string `json:"recommendations"`
	Urgency         int      `json:"urgency"`
}

// DiagnoseImage asks the model what is visibly wrong in image. description is
// the owner's own account and may be empty. The completer must implement
// ImageCompleter, otherwise ErrUnavailable is returned.
func (s *Service) DiagnoseImage(ctx context.Context, image []byte, description string) (Diagnosis, error) {
	if s == nil {
		return Diagnosis{}, ErrUnavailable
	}
	ic, ok := s.completer.(ImageCompleter)
	if !ok {
		return Diagnosis{}, ErrUnavailable
	}
	mediaType := http.DetectContentType(image)
	if !imageTypes[mediaType] {
		return Diagnosis{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mediaType)
	}

	prompt := "Please analyze this car image."
	if d := strings.TrimSpace(description); d != "" {
		prompt += " User description: " + d
	}
	raw, err := ic.CompleteImage(ctx, diagnosisSystemPrompt, prompt, image, mediaType)
	if err != nil {
		return Diagnosis{}, err
	}
	return ParseDiagnosis(raw)
}

// ParseDiagnosis parses the model's diagnosis. Analysis is required; a missing
// urgency becomes DefaultUrgency, an urgency outside 1-10 is an error.
func ParseDiagnosis(raw string) (Diagnosis, error) {
	var doc struct {
		Analysis        string   `json:"analysis"`
		IssuesFound     items    `json:"issues_found"`
		Recommendations items    `json:"recommendations"`
		Urgency         *float64 `json:"urgency"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &doc); err != nil {
		return Diagnosis{}, &ParseError{Raw: raw, Err: err}
	}
	analysis := strings.TrimSpace(doc.Analysis)
	if analysis == "" {
		return Diagnosis{}, &ParseError{Raw: raw, Err: errors.New("missing analysis")}
	}

	urgency := DefaultUrgency
	if doc.Urgency != nil {
		u := math.Round(*doc.Urgency)
		if u < 1 || u > 10 {
			return Diagnosis{}, &ParseError{Raw: raw, Err: fmt.Errorf("urgency %v outside 1-10", *doc.Urgency)}
		}
		urgency = int(u)
	}

	d := Diagnosis{
		Analysis:        analysis,
		IssuesFound:     []string(doc.IssuesFound),
		Recommendations: []string(doc.Recommendations),
		Urgency:         urgency,
	}
	if d.IssuesFound == nil {
		d.IssuesFound = []string{}
	}
	if d.Recommendations == nil {
		d.Recommendations = []string{}
	}
	return d, nil
}

// FallbackDiagnosis keeps the model's free text as the analysis and nothing else.
func FallbackDiagnosis(raw string) Diagnosis {
	analysis := strings.TrimSpace(stripFences(raw))
	if analysis == "" {
		analysis = "No analysis available."
	}
	return Diagnosis{
		Analysis:        analysis,
		IssuesFound:     []string{},
		Recommendations: []string{},
		Urgency:         DefaultUrgency,
	}
}

const diagnosisSystemPrompt = `You are an expert automotive diagnostic assistant. Analyze car images and provide detailed diagnostic information.

Focus on:
- Identifying visible issues or wear
- Safety concerns
- Maintenance recommendations
- Estimated urgency (1-10)

Respond with JSON only:
{
  "analysis": "What the image shows",
  "issues_found": ["..."],
  "recommendations": ["..."],
  "urgency": 5
}`
