package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ChatPane/pkg/cache"
	"ChatPane/pkg/config"
)

var ErrGeminiDisabled = errors.New("gemini is disabled via config")

// TranscribeInstruction is sent alongside every audio payload.
const TranscribeInstruction = "Transcribe this audio recording."

// ChatTurn is one role-tagged entry of the history sent to the model.
// Consecutive messages of the same role share a turn as separate parts.
type ChatTurn struct {
	Role  string
	Parts []string
}

type GeminiService struct {
	apiKey      string
	baseURL     string
	models      []string
	enabled     bool
	client      *http.Client
	transcripts *cache.Transcripts
	retryDelay  time.Duration
	log         *slog.Logger
}

func NewGeminiService(cfg *config.Config, transcripts *cache.Transcripts, logger *slog.Logger) *GeminiService {
	models := []string{cfg.GeminiModel}
	if fb := strings.TrimSpace(cfg.GeminiFallbackModel); fb != "" && fb != cfg.GeminiModel {
		models = append(models, fb)
	}
	return &GeminiService{
		apiKey:      cfg.GeminiAPIKey,
		baseURL:     strings.TrimRight(cfg.GeminiBaseURL, "/"),
		models:      models,
		enabled:     cfg.GeminiEnabled,
		client:      &http.Client{},
		transcripts: transcripts,
		retryDelay:  2 * time.Second,
		log:         logger.With("component", "gemini"),
	}
}

// Ready reports why the service cannot reach the API, or nil when it can.
func (s *GeminiService) Ready() error {
	if !s.enabled {
		return ErrGeminiDisabled
	}
	if strings.TrimSpace(s.apiKey) == "" {
		return errors.New("GEMINI_API_KEY is not set")
	}
	return nil
}

// StreamChat sends history plus prompt and yields reply fragments as they
// arrive. Models are tried in order and 429/503 is retried once, but only
// until the first fragment has been yielded; after that any error ends the
// sequence.
func (s *GeminiService) StreamChat(ctx context.Context, history []ChatTurn, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := s.Ready(); err != nil {
			yield("", err)
			return
		}
		body, err := json.Marshal(buildChatRequest(history, prompt))
		if err != nil {
			yield("", fmt.Errorf("encode request: %w", err))
			return
		}

		var failures []string
		for _, model := range s.models {
			started, err := s.streamModel(ctx, model, body, yield)
			if err != nil && !started && isRetriable(err) {
				sleepWithContext(ctx, s.retryDelay)
				started, err = s.streamModel(ctx, model, body, yield)
			}
			if err == nil || errors.Is(err, errStopped) {
				return
			}
			if started {
				yield("", err)
				return
			}
			s.log.Warn("stream model failed", "model", model, "error", err)
			failures = append(failures, fmt.Sprintf("%s -> %v", model, err))
		}
		yield("", fmt.Errorf("all gemini stream models failed: %s", strings.Join(failures, "; ")))
	}
}

var errStopped = errors.New("consumer stopped")

func (s *GeminiService) streamModel(ctx context.Context, model string, body []byte, yield func(string, error) bool) (started bool, err error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", s.baseURL, model)
	s.log.Debug("streaming", "model", model)

	resp, err := s.post(ctx, url, body, "text/event-stream")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return started, fmt.Errorf("malformed stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return started, &StatusError{Code: chunk.Error.Code, Body: chunk.Error.Message}
		}
		text := chunk.text()
		if text == "" {
			continue
		}
		started = true
		if !yield(text, nil) {
			return started, errStopped
		}
	}
	if err := scanner.Err(); err != nil {
		return started, fmt.Errorf("stream read error: %w", err)
	}
	return started, nil
}

// Transcribe converts an audio payload to text with a single blocking call.
func (s *GeminiService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if s.transcripts != nil {
		if text, ok := s.transcripts.Get(audio, mimeType); ok {
			return text, nil
		}
	}
	if err := s.Ready(); err != nil {
		return "", err
	}
	req := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &inlineData{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(audio)}},
				{Text: TranscribeInstruction},
			},
		}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var failures []string
	for _, model := range s.models {
		text, err := s.generate(ctx, model, body)
		if err != nil && isRetriable(err) {
			sleepWithContext(ctx, s.retryDelay)
			text, err = s.generate(ctx, model, body)
		}
		if err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				return "", errors.New("empty transcription")
			}
			if s.transcripts != nil {
				s.transcripts.Put(audio, mimeType, text)
			}
			return text, nil
		}
		s.log.Warn("transcribe model failed", "model", model, "error", err)
		failures = append(failures, fmt.Sprintf("%s -> %v", model, err))
	}
	return "", fmt.Errorf("all gemini models failed: %s", strings.Join(failures, "; "))
}

func (s *GeminiService) generate(ctx context.Context, model string, body []byte) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, model)
	resp, err := s.post(ctx, url, body, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return parsed.text(), nil
}

func (s *GeminiService) post(ctx context.Context, url string, body []byte, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

func buildChatRequest(history []ChatTurn, prompt string) geminiRequest {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, turn := range history {
		role := turn.Role
		if role != "user" && role != "model" {
			continue
		}
		parts := make([]geminiPart, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			parts = append(parts, geminiPart{Text: p})
		}
		contents = appendTurn(contents, role, parts)
	}
	contents = appendTurn(contents, "user", []geminiPart{{Text: prompt}})
	return geminiRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 2048,
			TopK:            40,
			TopP:            0.9,
		},
	}
}

// appendTurn adds a turn, folding it into the previous one when the roles
// match. The API rejects empty parts and part-less turns, so those are dropped.
func appendTurn(contents []geminiContent, role string, parts []geminiPart) []geminiContent {
	if len(parts) == 0 {
		return contents
	}
	if n := len(contents); n > 0 && contents[n-1].Role == role {
		contents[n-1].Parts = append(contents[n-1].Parts, parts...)
		return contents
	}
	return append(contents, geminiContent{Role: role, Parts: parts})
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func isRetriable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusTooManyRequests || se.Code == http.StatusServiceUnavailable
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
