package server

import (
	"encoding/json"
	"time"

	"github.com/earshotfm/earshot/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
}

// CaptureSignalRequest represents one captured fragment of interest.
type CaptureSignalRequest struct {
	Channel    string   `json:"channel"`
	InputType  string   `json:"input_type"`
	RawContent string   `json:"raw_content"`
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Topics     []string `json:"topics"`
}

// SignalResponse is the API view of a signal.
type SignalResponse struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	InputType  string    `json:"input_type"`
	RawContent string    `json:"raw_content"`
	URL        *string   `json:"url,omitempty"`
	Title      *string   `json:"title,omitempty"`
	Topics     []string  `json:"topics"`
	Status     string    `json:"status"`
	EpisodeID  *string   `json:"episode_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func signalResponse(sg store.Signal) SignalResponse {
	topics := sg.Topics
	if topics == nil {
		topics = []string{}
	}
	return SignalResponse{
		ID:         sg.ID,
		Channel:    sg.Channel,
		InputType:  sg.InputType,
		RawContent: sg.RawContent,
		URL:        sg.URL,
		Title:      sg.Title,
		Topics:     topics,
		Status:     string(sg.Status),
		EpisodeID:  sg.EpisodeID,
		CreatedAt:  sg.CreatedAt,
	}
}

// SignalSearchResult pairs a matching signal with its relevance score.
type SignalSearchResult struct {
	Signal  SignalResponse `json:"signal"`
	Score   float64        `json:"score"`
	Snippet string         `json:"snippet,omitempty"`
}

// GenerateEpisodeRequest selects the signals to compile into one episode.
type GenerateEpisodeRequest struct {
	SignalIDs []string `json:"signal_ids"`
}

// EpisodeResponse is the API view of an episode.
type EpisodeResponse struct {
	ID                   string     `json:"id"`
	Title                *string    `json:"title,omitempty"`
	Summary              *string    `json:"summary,omitempty"`
	AudioURL             *string    `json:"audio_url,omitempty"`
	AudioDurationSeconds *int       `json:"audio_duration_seconds,omitempty"`
	SignalCount          int        `json:"signal_count"`
	Status               string     `json:"status"`
	Error                *string    `json:"error,omitempty"`
	GeneratedAt          *time.Time `json:"generated_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func episodeResponse(ep store.Episode) EpisodeResponse {
	return EpisodeResponse{
		ID:                   ep.ID,
		Title:                ep.Title,
		Summary:              ep.Summary,
		AudioURL:             ep.AudioURL,
		AudioDurationSeconds: ep.AudioDurationSeconds,
		SignalCount:          ep.SignalCount,
		Status:               string(ep.Status),
		Error:                ep.Error,
		GeneratedAt:          ep.GeneratedAt,
		CreatedAt:            ep.CreatedAt,
		UpdatedAt:            ep.UpdatedAt,
	}
}

// VoiceResponse is one narrator in the catalog.
type VoiceResponse struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// VoiceSampleResponse points at a narrator preview clip.
type VoiceSampleResponse struct {
	URL    string `json:"url"`
	Cached bool   `json:"cached"`
}

// FeedbackRequest represents a free-form product note.
type FeedbackRequest struct {
	Body string `json:"body"`
}

// FeedbackResponse is the API view of a feedback note.
type FeedbackResponse struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func feedbackResponse(f store.Feedback) FeedbackResponse {
	return FeedbackResponse{ID: f.ID, UserID: f.UserID, Body: f.Body, CreatedAt: f.CreatedAt}
}

// QuestionnaireRequest carries onboarding answers as an opaque JSON object.
type QuestionnaireRequest struct {
	Answers json.RawMessage `json:"answers"`
}

// QuestionnaireResponse acknowledges stored answers.
type QuestionnaireResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminActionRequest is the discriminated admin operation payload. Action
// selects the operation, ID addresses its target.
type AdminActionRequest struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

// AdminActionResponse reports the applied action.
type AdminActionResponse struct {
	Action string `json:"action"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// EpisodeTotals buckets episode counts for the ops dashboard.
type EpisodeTotals struct {
	Total      int `json:"total"`
	Ready      int `json:"ready"`
	Failed     int `json:"failed"`
	Generating int `json:"generating"`
}

// SignalTotals buckets signal counts for the ops dashboard.
type SignalTotals struct {
	Queued   int `json:"queued"`
	Enriched int `json:"enriched"`
	Pending  int `json:"pending"`
	Used     int `json:"used"`
}

// OpsStatsResponse is the admin pipeline overview.
type OpsStatsResponse struct {
	Health      string        `json:"health"`
	Reaped      int           `json:"reaped"`
	Episodes    EpisodeTotals `json:"episodes"`
	Signals     SignalTotals  `json:"signals"`
	LastReadyAt *time.Time    `json:"last_ready_at,omitempty"`
}
