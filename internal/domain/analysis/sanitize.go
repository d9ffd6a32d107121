package analysis

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Limits applied to inference output before it is stored or shown.
const (
	MaxListEntries      = 10
	MaxItemLength       = 500
	MaxPredictionLength = 200
	MaxTimelineLength   = 200
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// InferenceResponse is the raw body returned by the remote inference function.
// ConfidenceScore is kept raw because upstream has been seen to send strings.
type InferenceResponse struct {
	DiseasePrediction     string          `json:"disease_prediction"`
	ConfidenceScore       json.RawMessage `json:"confidence_score"`
	SeverityLevel         string          `json:"severity_level"`
	TreatmentSteps        []string        `json:"treatment_steps"`
	PrecautionaryMeasures []string        `json:"precautionary_measures"`
	ProductsRecommended   []string        `json:"products_recommended"`
	ExpertTips            []string        `json:"expert_tips"`
	Timeline              *string         `json:"timeline"`
}

// Findings are inference results after client-side validation.
type Findings struct {
	DiseasePrediction     string
	ConfidenceScore       float64
	SeverityLevel         Severity
	TreatmentSteps        []string
	PrecautionaryMeasures []string
	ProductsRecommended   []string
	ExpertTips            []string
	Timeline              *string
}

// Sanitize validates and clamps every field of an inference response.
func Sanitize(resp *InferenceResponse) *Findings {
	f := &Findings{
		DiseasePrediction:     CleanText(resp.DiseasePrediction, MaxPredictionLength),
		ConfidenceScore:       ParseConfidence(resp.ConfidenceScore),
		SeverityLevel:         ParseSeverity(resp.SeverityLevel),
		TreatmentSteps:        CleanList(resp.TreatmentSteps),
		PrecautionaryMeasures: CleanList(resp.PrecautionaryMeasures),
		ProductsRecommended:   CleanList(resp.ProductsRecommended),
		ExpertTips:            CleanList(resp.ExpertTips),
	}
	if resp.Timeline != nil {
		if t := CleanText(*resp.Timeline, MaxTimelineLength); t != "" {
			f.Timeline = &t
		}
	}
	return f
}

// Recommendation builds the treatment record for analysisID from the findings.
func (f *Findings) Recommendation(analysisID string) *TreatmentRecommendation {
	return &TreatmentRecommendation{
		AnalysisID:            analysisID,
		TreatmentSteps:        f.TreatmentSteps,
		PrecautionaryMeasures: f.PrecautionaryMeasures,
		ProductsRecommended:   f.ProductsRecommended,
		ExpertTips:            f.ExpertTips,
		Timeline:              f.Timeline,
	}
}

// ParseConfidence accepts a JSON number or numeric string and clamps it to [0,1].
// Anything else, including NaN, yields 0.
func ParseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		v = parsed
	}
	return ClampConfidence(v)
}

// ClampConfidence restricts v to [0,1].
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// StripTags removes anything that looks like an HTML tag.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// CleanText strips tags, trims whitespace and truncates to max runes.
func CleanText(s string, max int) string {
	s = strings.TrimSpace(StripTags(s))
	r := []rune(s)
	if len(r) > max {
		s = strings.TrimSpace(string(r[:max]))
	}
	return s
}

// CleanList caps a list at MaxListEntries and cleans each item, dropping empty ones.
func CleanList(items []string) []string {
	out := make([]string, 0, min(len(items), MaxListEntries))
	for _, item := range items {
		if len(out) == MaxListEntries {
			break
		}
		if c := CleanText(item, MaxItemLength); c != "" {
			out = append(out, c)
		}
	}
	return out
}
