// Package analysis provides domain entities for crop disease analyses.
package analysis

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a crop analysis record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsValid reports whether the status is a known state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether pending -> processing -> {completed, failed} allows moving to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Severity is the assessed severity of a detected disease.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether the severity is one of the fixed levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// ParseSeverity normalizes a severity string; unrecognized values become SeverityLow.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.IsValid() {
		return sev
	}
	return SeverityLow
}

// Location is where the crop photo was taken.
type Location struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

// Validate checks coordinate ranges.
func (l *Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", l.Lat)
	}
	if l.Lng < -180 || l.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", l.Lng)
	}
	return nil
}

// CropAnalysis mirrors a row of the backend analyses table.
type CropAnalysis struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	ImageURL          string    `json:"image_url"`
	ImagePath         string    `json:"image_path,omitempty"`
	CropType          string    `json:"crop_type"`
	DiseasePrediction *string   `json:"disease_prediction"`
	ConfidenceScore   *float64  `json:"confidence_score"`
	SeverityLevel     *Severity `json:"severity_level"`
	Status            Status    `json:"status"`
	AnalysisDate      time.Time `json:"analysis_date"`
	Location          *Location `json:"location_data,omitempty"`
}

// NewCropAnalysis creates a pending analysis for an uploaded image.
func NewCropAnalysis(id, userID, imageURL, imagePath, cropType string, loc *Location) *CropAnalysis {
	return &CropAnalysis{
		ID:           id,
		UserID:       userID,
		ImageURL:     imageURL,
		ImagePath:    imagePath,
		CropType:     cropType,
		Status:       StatusPending,
		AnalysisDate: time.Now().UTC(),
		Location:     loc,
	}
}

// Transition moves the analysis to next, rejecting transitions the state machine forbids.
func (a *CropAnalysis) Transition(next Status) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("invalid analysis transition %s -> %s", a.Status, next)
	}
	a.Status = next
	return nil
}

// Complete records sanitized findings and moves the analysis to completed.
func (a *CropAnalysis) Complete(f *Findings) error {
	if err := a.Transition(StatusCompleted); err != nil {
		return err
	}
	prediction := f.DiseasePrediction
	confidence := f.ConfidenceScore
	severity := f.SeverityLevel
	a.DiseasePrediction = &prediction
	a.ConfidenceScore = &confidence
	a.SeverityLevel = &severity
	return nil
}

// Prediction returns the disease prediction or an empty string.
func (a *CropAnalysis) Prediction() string {
	if a.DiseasePrediction == nil {
		return ""
	}
	return *a.DiseasePrediction
}

// TreatmentRecommendation is the one-to-one recommendation for a completed analysis.
type TreatmentRecommendation struct {
	ID                    string   `json:"id,omitempty"`
	AnalysisID            string   `json:"analysis_id"`
	TreatmentSteps        []string `json:"treatment_steps"`
	PrecautionaryMeasures []string `json:"precautionary_measures"`
	ProductsRecommended   []string `json:"products_recommended"`
	ExpertTips            []string `json:"expert_tips"`
	Timeline              *string  `json:"timeline"`
}

// Result bundles an analysis with its recommendation.
type Result struct {
	Analysis       *CropAnalysis            `json:"analysis"`
	Recommendation *TreatmentRecommendation `json:"recommendation,omitempty"`
	Queued         bool                     `json:"queued,omitempty"`
}
