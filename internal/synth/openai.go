package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/store"
)

const draftSystemPrompt = `You turn a listener's saved signals (links, notes, topics) into one short narrated audio episode.
Respond with a single JSON object with exactly these keys:
  "title": a short episode title,
  "summary": two or three sentences describing the episode,
  "script": the full narration text, plain prose, no markup, no stage directions.
Cover every signal. Keep the script under about 900 words.`

// OpenAIContent drafts episodes with the chat completions API.
type OpenAIContent struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIContent(cfg config.OpenAIConfig) *OpenAIContent {
	return &OpenAIContent{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.ChatModel,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

func (p *OpenAIContent) DraftEpisode(ctx context.Context, req ContentRequest) (EpisodeDraft, error) {
	if len(req.Signals) == 0 {
		return EpisodeDraft{}, fmt.Errorf("draft episode: no signals")
	}

	var b strings.Builder
	for i, sg := range req.Signals {
		fmt.Fprintf(&b, "\n[Signal %d]\n", i+1)
		if sg.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", sg.Title)
		}
		if sg.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", sg.URL)
		}
		if len(sg.Topics) > 0 {
			fmt.Fprintf(&b, "Topics: %s\n", strings.Join(sg.Topics, ", "))
		}
		fmt.Fprintf(&b, "Content:\n%s\n", sg.RawContent)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: draftSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Signals:\n" + b.String()},
		},
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return EpisodeDraft{}, upstreamErr("openai-chat", err)
	}
	if len(resp.Choices) == 0 {
		return EpisodeDraft{}, &store.UpstreamError{Service: "openai-chat", Msg: "empty completion"}
	}

	draft, err := parseDraft(resp.Choices[0].Message.Content)
	if err != nil {
		return EpisodeDraft{}, fmt.Errorf("draft episode: %w", err)
	}
	return draft, nil
}

// parseDraft tolerates models that wrap the JSON object in prose or fences.
func parseDraft(content string) (EpisodeDraft, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return EpisodeDraft{}, fmt.Errorf("no JSON object in completion")
	}
	var draft EpisodeDraft
	if err := json.Unmarshal([]byte(content[start:end+1]), &draft); err != nil {
		return EpisodeDraft{}, fmt.Errorf("parse completion: %w", err)
	}
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Summary = strings.TrimSpace(draft.Summary)
	draft.Script = strings.TrimSpace(draft.Script)
	if draft.Title == "" || draft.Script == "" {
		return EpisodeDraft{}, fmt.Errorf("incomplete draft: title or script missing")
	}
	return draft, nil
}

// OpenAISpeech renders scripts with the speech API.
type OpenAISpeech struct {
	client *openai.Client
	model  string
}

func NewOpenAISpeech(cfg config.OpenAIConfig) *OpenAISpeech {
	return &OpenAISpeech{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.TTSModel,
	}
}

func (p *OpenAISpeech) Synthesize(ctx context.Context, req SpeechRequest) (SpeechResult, error) {
	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.model),
		Input:          req.Input,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          req.Speed,
	})
	if err != nil {
		return SpeechResult{}, upstreamErr("openai-speech", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return SpeechResult{}, fmt.Errorf("read speech response: %w", err)
	}
	if len(audio) == 0 {
		return SpeechResult{}, &store.UpstreamError{Service: "openai-speech", Msg: "empty audio response"}
	}
	return SpeechResult{
		Audio:    audio,
		MIME:     "audio/mpeg",
		Duration: EstimateSpokenDuration(req.Input, req.Speed),
	}, nil
}

// upstreamErr keeps context cancellations recognizable and tags everything
// else with the provider status when the SDK exposes one.
func upstreamErr(service string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &store.UpstreamError{Service: service, Status: apiErr.HTTPStatusCode, Msg: apiErr.Message}
	}
	return &store.UpstreamError{Service: service, Msg: err.Error()}
}
