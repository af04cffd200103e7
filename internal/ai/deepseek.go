package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/logging"
	st "github.com/keshon/himera/internal/storagetypes"
	"github.com/keshon/himera/pkg/retrylimit"
)

// Client talks to an OpenAI-compatible chat endpoint (DeepSeek by default).
type Client struct {
	api     openai.Client
	model   string
	timeout time.Duration
	retry   retrylimit.RetryConfig
	limiter *retrylimit.AdaptiveLimiter
	log     zerolog.Logger

	calls    atomic.Int64
	failures atomic.Int64
}

var _ Provider = (*Client)(nil)

func withDefaults(cfg config.LLM) config.LLM {
	out := cfg
	if strings.TrimSpace(out.BaseURL) == "" {
		out.BaseURL = "https://api.deepseek.com"
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = "deepseek-chat"
	}
	if out.Timeout <= 0 {
		out.Timeout = 60 * time.Second
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 1
	}
	if out.RatePerSec <= 0 {
		out.RatePerSec = 2
	}
	return out
}

// NewClient builds a client. httpClient may be nil.
func NewClient(cfg config.LLM, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	c := &Client{log: log.With().Str("component", "llm").Logger()}
	cfg = withDefaults(cfg)
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout + 5*time.Second}
	}

	// retries are driven by retrylimit, not the SDK
	c.api = openai.NewClient(
		option.WithBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	c.model = cfg.Model
	c.timeout = cfg.Timeout
	c.limiter = retrylimit.NewAdaptiveLimiter(rate.Limit(cfg.RatePerSec), 0.2, rate.Limit(cfg.RatePerSec*4), 0.5, 0.5)
	c.retry = retrylimit.DefaultRetryConfig()
	c.retry.MaxAttempts = cfg.MaxRetries
	c.retry.Logger = c.log
	return c, nil
}

// Complete sends msgs with the sampling settings of mode. The whole call,
// retries included, is bounded by the configured timeout.
func (c *Client) Complete(ctx context.Context, msgs []Message, mode st.Mode, jsonMode bool) (string, error) {
	if jsonMode {
		msgs = jsonPrompts(msgs)
	}
	p := ParamsFor(mode)
	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(c.model),
		Messages:         toParams(msgs),
		Temperature:      openai.Float(p.Temperature),
		TopP:             openai.Float(p.TopP),
		MaxTokens:        openai.Int(p.MaxTokens),
		FrequencyPenalty: openai.Float(p.FrequencyPenalty),
		PresencePenalty:  openai.Float(p.PresencePenalty),
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.calls.Add(1)
	start := time.Now()
	var reply string
	err := retrylimit.Do(ctx, c.limiter, c.retry, func(ctx context.Context) error {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return retrylimit.Fatal(ErrEmpty)
		}
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
		if reply == "" {
			return retrylimit.Fatal(ErrEmpty)
		}
		return nil
	})
	if err != nil {
		c.failures.Add(1)
		err = normalize(ctx, err)
		c.log.Error().Err(err).Str("mode", string(mode)).Bool("json", jsonMode).Dur("took", time.Since(start)).Msg("completion failed")
		return "", err
	}
	c.log.Info().Str("mode", string(mode)).Bool("json", jsonMode).Dur("took", time.Since(start)).
		Str("reply", logging.Preview(reply, 100)).Msg("completion")
	return reply, nil
}

// Stats returns the number of calls and failed calls so far.
func (c *Client) Stats() (calls, failures int64) {
	return c.calls.Load(), c.failures.Load()
}

func toParams(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case st.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case st.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classify maps SDK errors onto retry decisions: 429 and 5xx are retried,
// other API errors are not.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		se := &retrylimit.StatusError{Code: apiErr.StatusCode, Err: fmt.Errorf("%w: %v", ErrAPI, err)}
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return se
		}
		return retrylimit.Fatal(se)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return retrylimit.Fatal(err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// normalize makes sure every failure wraps one of the package sentinels.
func normalize(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrEmpty), errors.Is(err, ErrAPI), errors.Is(err, ErrConnection):
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrAPI) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
}
