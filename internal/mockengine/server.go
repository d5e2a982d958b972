package mockengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	ownedBy        = "mock-engine"
	wordsPerChunk  = 3
	maxRequestBody = 4 << 20
)

// Server serves the OpenAI-compatible endpoints for one Engine.
type Server struct {
	engine   Engine
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *Metrics
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewServer returns a Server with its own metrics registry.
func NewServer(engine Engine, logger zerolog.Logger) *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		engine:   engine,
		log:      logger,
		registry: reg,
		metrics:  NewMetrics(reg),
		sleep:    sleepContext,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.metrics.Middleware,
		s.requestLogger,
	)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", s.chatCompletions)
		r.Post("/completions", s.completions)
		r.Get("/models", s.models)
	})
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
		next.ServeHTTP(w, r)
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
}

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    any    `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type assistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Index        int              `json:"index"`
	Message      assistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

type chatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   usage        `json:"usage"`
}

type delta struct {
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int     `json:"index"`
	Delta        delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type completionChoice struct {
	Text         string  `json:"text"`
	Index        int     `json:"index"`
	Logprobs     *string `json:"logprobs"`
	FinishReason string  `json:"finish_reason"`
}

type textCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   usage              `json:"usage"`
}

type model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string  `json:"object"`
	Data   []model `json:"data"`
}

func (s *Server) chatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	prompt := lastUserMessage(req.Messages)
	text := chatResponse(prompt)
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += EstimateTokens(contentText(m.Content))
	}
	completionTokens := EstimateTokens(text)
	modelName := s.modelName(req.Model)

	if req.Stream {
		s.streamChat(w, r, text, modelName, promptTokens, completionTokens, start)
		return
	}

	delay := s.engine.Delay(promptTokens, completionTokens)
	if err := s.sleep(r.Context(), delay); err != nil {
		s.log.Debug().Err(err).Msg("client went away during simulated delay")
		return
	}
	s.metrics.observeCompletion("chat", delay, promptTokens, completionTokens)

	writeJSON(w, http.StatusOK, chatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelName,
		Choices: []chatChoice{{
			Message:      assistantMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: usage{PromptTokens: promptTokens, CompletionTokens: completionTokens, TotalTokens: promptTokens + completionTokens},
	})
	s.responseSent(start, promptTokens, completionTokens)
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, text, modelName string, promptTokens, completionTokens int, start time.Time) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	prefill := s.engine.PrefillDelay(promptTokens)
	if err := s.sleep(ctx, prefill); err != nil {
		return
	}

	chunks := splitChunks(text, wordsPerChunk)
	limiter := s.decodeLimiter(chunks, completionTokens, prefill)
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	for _, c := range chunks {
		if err := limiter.WaitN(ctx, chunkTokens(c, limiter.Burst())); err != nil {
			s.log.Debug().Err(err).Msg("stream aborted")
			return
		}
		if err := writeEvent(w, chatChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: modelName,
			Choices: []chunkChoice{{Delta: delta{Content: c}}},
		}); err != nil {
			return
		}
		_ = rc.Flush()
	}

	stop := "stop"
	if err := writeEvent(w, chatChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: modelName,
		Choices: []chunkChoice{{FinishReason: &stop}},
	}); err != nil {
		return
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	_ = rc.Flush()

	s.metrics.observeCompletion("chat_stream", time.Since(start), promptTokens, completionTokens)
	s.responseSent(start, promptTokens, completionTokens)
}

// decodeLimiter paces stream chunks at the decode rate. The rate is raised
// when the whole stream would otherwise overrun the delay cap.
func (s *Server) decodeLimiter(chunks []string, completionTokens int, prefill time.Duration) *rate.Limiter {
	burst := 1
	for _, c := range chunks {
		if n := EstimateTokens(c); n > burst {
			burst = n
		}
	}

	limit := rate.Limit(s.engine.DecodeTokensPerSec)
	if maxDelay := s.engine.MaxDelay(); maxDelay > 0 && completionTokens > 0 {
		budget := (maxDelay - prefill).Seconds()
		switch {
		case budget <= 0:
			limit = rate.Inf
		case float64(completionTokens)/float64(limit) > budget:
			limit = rate.Limit(float64(completionTokens) / budget)
		}
	}

	l := rate.NewLimiter(limit, burst)
	l.AllowN(time.Now(), burst)
	return l
}

func chunkTokens(chunk string, burst int) int {
	n := EstimateTokens(chunk)
	if n < 1 {
		n = 1
	}
	if n > burst {
		n = burst
	}
	return n
}

func splitChunks(text string, size int) []string {
	words := strings.Fields(text)
	chunks := make([]string, 0, len(words)/size+1)
	for i := 0; i < len(words); i += size {
		end := min(i+size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " ")+" ")
	}
	return chunks
}

func (s *Server) completions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req completionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	prompt := contentText(req.Prompt)
	text := completionResponse(prompt)
	promptTokens := EstimateTokens(prompt)
	completionTokens := EstimateTokens(text)

	delay := s.engine.Delay(promptTokens, completionTokens)
	if err := s.sleep(r.Context(), delay); err != nil {
		return
	}
	s.metrics.observeCompletion("completion", delay, promptTokens, completionTokens)

	writeJSON(w, http.StatusOK, textCompletion{
		ID:      "cmpl-" + uuid.NewString(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   s.modelName(req.Model),
		Choices: []completionChoice{{Text: text, FinishReason: "stop"}},
		Usage:   usage{PromptTokens: promptTokens, CompletionTokens: completionTokens, TotalTokens: promptTokens + completionTokens},
	})
	s.responseSent(start, promptTokens, completionTokens)
}

func (s *Server) models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelList{
		Object: "list",
		Data: []model{{
			ID:      s.engine.Model,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: ownedBy,
		}},
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "engine": ownedBy})
}

// responseSent logs the line the benchmark harness parses for API time.
func (s *Server) responseSent(start time.Time, promptTokens, completionTokens int) {
	s.log.Info().
		Int("prompt_tokens", promptTokens).
		Int("completion_tokens", completionTokens).
		Msgf("Response sent in %.3fs", time.Since(start).Seconds())
}

func (s *Server) modelName(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return s.engine.Model
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return contentText(messages[i].Content)
		}
	}
	return ""
}

// contentText flattens a string or a list of content parts into plain text.
func contentText(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch p := item.(type) {
			case string:
				parts = append(parts, p)
			case map[string]any:
				if t, ok := p["text"]; ok {
					parts = append(parts, fmt.Sprint(t))
				} else if c, ok := p["content"]; ok {
					parts = append(parts, fmt.Sprint(c))
				}
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("no JSON data provided")
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": message, "type": kind},
	})
}

func writeEvent(w io.Writer, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
