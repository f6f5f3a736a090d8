package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/lumahub/luma-bridge/internal/backend"
	"github.com/lumahub/luma-bridge/internal/breaker"
	"github.com/lumahub/luma-bridge/internal/metrics"
)

// LocalBackendID is the circuit breaker key for the local model runtime.
const LocalBackendID = "local-model"

// lengthThreshold is the total conversation size above which requests are
// routed to the cloud model.
const lengthThreshold = 8000

// complexTaskKeywords trigger cloud routing when they appear in the last
// three messages of a conversation.
var complexTaskKeywords = []string{
	"agent swarm", "multi-agent", "parallel agents", "coordinate agents",
	"complex analysis", "deep research", "comprehensive", "thorough investigation",
	"analyze image", "analyze video", "vision", "look at this",
	"step by step plan", "detailed breakdown", "orchestrate",
}

// Provider identifies which backend served a chat response.
type Provider int

const (
	ProviderNone Provider = iota
	ProviderLocal
	ProviderCloud
)

func (p Provider) String() string {
	switch p {
	case ProviderLocal:
		return "local"
	case ProviderCloud:
		return "cloud-model"
	default:
		return "none"
	}
}

// Reason explains a routing decision.
type Reason string

const (
	ReasonForced       Reason = "forced"
	ReasonKeyword      Reason = "keyword-match"
	ReasonLength       Reason = "length-threshold"
	ReasonDefaultLocal Reason = "default-local"
)

// Decision is the outcome of the routing heuristics. Deciding never touches
// the network.
type Decision struct {
	UseCloud bool
	Reason   Reason
}

// Options control a single routed chat request.
type Options struct {
	Model       string
	Temperature float64
	ForceLocal  bool
	ForceCloud  bool
	CloudMode   string
}

// LocalClient is the local model runtime the router falls back on.
type LocalClient interface {
	Chat(ctx context.Context, model string, messages []backend.Message, temperature float64) (string, error)
	ListModels(ctx context.Context) ([]backend.ModelInfo, error)
	DefaultModel() string
}

// CloudClient is the cloud model API used for complex tasks.
type CloudClient interface {
	Chat(ctx context.Context, messages []backend.Message, temperature float64, mode string) (string, error)
	Configured() bool
}

// Router decides per request whether the local or cloud backend serves it,
// falls back between them, and guards the local runtime with a circuit
// breaker.
type Router struct {
	local    LocalClient
	cloud    CloudClient
	breaker  *breaker.Breaker
	localURL string
	logger   *slog.Logger
}

// Config holds router dependencies
type Config struct {
	Local    LocalClient
	Cloud    CloudClient
	Breaker  *breaker.Breaker
	LocalURL string
	Logger   *slog.Logger
}

// New creates a new chat router
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		local:    cfg.Local,
		cloud:    cfg.Cloud,
		breaker:  cfg.Breaker,
		localURL: cfg.LocalURL,
		logger:   logger,
	}
}

// Keywords returns the keyword list that triggers cloud routing.
func Keywords() []string {
	out := make([]string, len(complexTaskKeywords))
	copy(out, complexTaskKeywords)
	return out
}

// Normalize accepts either a single free-text message or a list of
// role/content pairs and produces the internal message list. Entries with
// empty content are dropped; an empty result means the request is a client
// error.
func Normalize(message string, messages []backend.Message) []backend.Message {
	if len(messages) > 0 {
		out := make([]backend.Message, 0, len(messages))
		for _, m := range messages {
			if m.Content == "" {
				continue
			}
			role := m.Role
			if role == "" {
				role = "user"
			}
			out = append(out, backend.Message{Role: role, Content: m.Content})
		}
		if len(out) > 0 {
			return out
		}
	}
	if message != "" {
		return []backend.Message{{Role: "user", Content: message}}
	}
	return nil
}

// Decide evaluates the routing rules in order, first match wins. It is pure:
// the same messages and options always produce the same decision.
func (r *Router) Decide(messages []backend.Message, opts Options) Decision {
	if opts.ForceLocal {
		return Decision{UseCloud: false, Reason: ReasonForced}
	}
	if opts.ForceCloud {
		return Decision{UseCloud: true, Reason: ReasonForced}
	}
	if r.cloud == nil || !r.cloud.Configured() {
		return Decision{UseCloud: false, Reason: ReasonDefaultLocal}
	}

	start := 0
	if len(messages) > 3 {
		start = len(messages) - 3
	}
	var sb strings.Builder
	for _, m := range messages[start:] {
		sb.WriteString(m.Content)
		sb.WriteString(" ")
	}
	recent := strings.ToLower(sb.String())
	for _, kw := range complexTaskKeywords {
		if strings.Contains(recent, kw) {
			return Decision{UseCloud: true, Reason: ReasonKeyword}
		}
	}

	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	if total > lengthThreshold {
		return Decision{UseCloud: true, Reason: ReasonLength}
	}

	return Decision{UseCloud: false, Reason: ReasonDefaultLocal}
}

// Route runs a chat request through the hybrid routing policy. A cloud
// failure never surfaces to the caller while the local backend can still
// serve; only when both are exhausted does the error come back, tagged
// ProviderNone.
func (r *Router) Route(ctx context.Context, messages []backend.Message, opts Options) (string, Provider, error) {
	decision := r.Decide(messages, opts)
	target := "local"
	if decision.UseCloud {
		target = "cloud"
	}
	metrics.RoutingDecisions.WithLabelValues(target, string(decision.Reason)).Inc()

	if decision.UseCloud && r.cloud != nil {
		mode := opts.CloudMode
		if mode == "" {
			mode = backend.ModeThinking
		}
		content, err := r.cloud.Chat(ctx, messages, opts.Temperature, mode)
		if err == nil {
			metrics.ChatResponses.WithLabelValues(ProviderCloud.String()).Inc()
			return content, ProviderCloud, nil
		}
		r.logger.Warn("cloud chat failed, falling back to local", "mode", mode, "error", err)
	}

	content, err := r.chatLocal(ctx, messages, opts)
	if err == nil {
		metrics.ChatResponses.WithLabelValues(ProviderLocal.String()).Inc()
		return content, ProviderLocal, nil
	}

	metrics.ChatResponses.WithLabelValues(ProviderNone.String()).Inc()
	return "", ProviderNone, err
}

// chatLocal calls the local runtime behind the circuit breaker. A
// non-success response gets exactly one retry with an alternate installed
// model; the final outcome is what the breaker records.
func (r *Router) chatLocal(ctx context.Context, messages []backend.Message, opts Options) (string, error) {
	allowed, retryAfter := r.breaker.Allow(LocalBackendID)
	if !allowed {
		r.logger.Warn("local circuit open", "retry_after", retryAfter)
		return "", &breaker.OpenError{BackendID: LocalBackendID, RetryAfter: retryAfter}
	}

	model := opts.Model
	if model == "" || model == "auto" {
		model = r.local.DefaultModel()
	}

	content, err := r.local.Chat(ctx, model, messages, opts.Temperature)
	if err != nil {
		var be *backend.Error
		if errors.As(err, &be) && be.Status != 0 {
			if alt := r.alternateModel(ctx, model); alt != "" {
				r.logger.Info("retrying local chat with alternate model", "requested", model, "alternate", alt)
				if retried, retryErr := r.local.Chat(ctx, alt, messages, opts.Temperature); retryErr == nil {
					r.breaker.RecordSuccess(LocalBackendID)
					return retried, nil
				}
			}
		}
		r.breaker.RecordFailure(LocalBackendID)
		return "", err
	}

	r.breaker.RecordSuccess(LocalBackendID)
	return content, nil
}

// alternateModel lists installed models and picks the first one that differs
// from the requested model. Best effort: a listing failure skips the retry.
func (r *Router) alternateModel(ctx context.Context, requested string) string {
	models, err := r.local.ListModels(ctx)
	if err != nil {
		return ""
	}
	for _, m := range models {
		if m.Name != "" && m.Name != requested {
			return m.Name
		}
	}
	return ""
}

// ProviderStatus describes one routing target for status reporting.
type ProviderStatus struct {
	Available bool     `json:"available"`
	Models    []string `json:"models,omitempty"`
	URL       string   `json:"url,omitempty"`
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	Modes     []string `json:"modes,omitempty"`
}

// Status reports live provider availability and the routing heuristics.
// Informational only: the local check reflects backend state at call time.
func (r *Router) Status(ctx context.Context) map[string]interface{} {
	localAvailable := false
	var localModels []string
	if models, err := r.local.ListModels(ctx); err == nil {
		localAvailable = true
		for _, m := range models {
			localModels = append(localModels, m.Name)
		}
	}

	return map[string]interface{}{
		"providers": map[string]ProviderStatus{
			"local": {
				Available: localAvailable,
				Models:    localModels,
				URL:       r.localURL,
			},
			"cloud": {
				Available: r.cloud != nil && r.cloud.Configured(),
				Provider:  "Moonshot AI",
				Model:     "Kimi K2.5",
				Modes:     backend.Modes(),
			},
		},
		"routing": map[string]interface{}{
			"strategy": "auto",
			"keywords": Keywords(),
		},
	}
}
