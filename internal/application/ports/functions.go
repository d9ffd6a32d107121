// Package ports defines the application layer port interfaces following hexagonal architecture.
// Ports are abstractions that allow the application core to interact with external systems
// (adapters) without knowing their implementation details.
package ports

import (
	"context"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/domain/analysis"
)

// InferenceRequest is the body sent to the crop analysis function.
type InferenceRequest struct {
	ImageURL   string `json:"imageUrl"`
	CropType   string `json:"cropType"`
	AnalysisID string `json:"analysisId"`
	UserID     string `json:"userId"`
	Language   string `json:"language"`
}

// InferencePort runs disease detection on an uploaded image.
type InferencePort interface {
	Analyze(ctx context.Context, req InferenceRequest) (*analysis.InferenceResponse, error)
}

// ChatMessage is a role/content pair sent to the assistant.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body sent to the chat function.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	UserID   string        `json:"userId"`
	Language string        `json:"language"`
}

// StreamCallback receives each content delta in order.
type StreamCallback func(delta string) error

// ChatStreamPort streams assistant replies.
type ChatStreamPort interface {
	// StreamChat calls cb for every delta and returns the full concatenated reply.
	StreamChat(ctx context.Context, req ChatRequest, cb StreamCallback) (string, error)
}

// TranslateRequest is the body sent to the translation function.
type TranslateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
}

// TranslatorPort translates text remotely.
type TranslatorPort interface {
	Translate(ctx context.Context, req TranslateRequest) (string, error)
}

// Conditions is a weather observation.
type Conditions struct {
	TemperatureC float64 `json:"temperature_c"`
	Humidity     float64 `json:"humidity"`
	RainfallMM   float64 `json:"rainfall_mm"`
	WindKPH      float64 `json:"wind_kph"`
	Summary      string  `json:"summary"`
}

// DailyForecast is one day of a forecast.
type DailyForecast struct {
	Date    string  `json:"date"`
	MinC    float64 `json:"min_c"`
	MaxC    float64 `json:"max_c"`
	RainPct float64 `json:"rain_pct"`
	Summary string  `json:"summary"`
}

// Forecast is the response of the weather function.
type Forecast struct {
	Location  string          `json:"location"`
	Current   Conditions      `json:"current"`
	Daily     []DailyForecast `json:"daily"`
	Alerts    []string        `json:"alerts,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// WeatherPort fetches forecasts.
type WeatherPort interface {
	Forecast(ctx context.Context, lat, lng float64) (*Forecast, error)
}

// CameraPort acquires raw frames.
type CameraPort interface {
	// Capture returns the encoded bytes of the current frame or a capture.CameraError.
	Capture(ctx context.Context) ([]byte, error)
}
