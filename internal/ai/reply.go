package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	st "github.com/keshon/himera/internal/storagetypes"
)

// Responder turns a Provider into finished user-facing replies.
type Responder struct {
	provider Provider
	useJSON  bool
	fallback bool
	log      zerolog.Logger

	jsonOK        atomic.Int64
	jsonFailed    atomic.Int64
	jsonFallbacks atomic.Int64
}

func NewResponder(p Provider, useJSON, fallback bool, log zerolog.Logger) *Responder {
	return &Responder{
		provider: p,
		useJSON:  useJSON,
		fallback: fallback,
		log:      log.With().Str("component", "responder").Logger(),
	}
}

// Reply is one finished answer. Violation is set when the raw text broke
// the prose rules and had to be cleaned.
type Reply struct {
	Text      string
	Violation bool
	Apology   bool
}

// JSONStats counts structured-output outcomes since start.
type JSONStats struct {
	Success   int64 `json:"success"`
	Failures  int64 `json:"failures"`
	Fallbacks int64 `json:"fallbacks"`
}

func (r *Responder) Stats() JSONStats {
	return JSONStats{
		Success:   r.jsonOK.Load(),
		Failures:  r.jsonFailed.Load(),
		Fallbacks: r.jsonFallbacks.Load(),
	}
}

// Respond asks the provider for an answer to msgs. Transport errors are
// returned as is; a reply that cannot be parsed becomes an apology unless
// the plain-text fallback rescues it.
func (r *Responder) Respond(ctx context.Context, msgs []Message, mode st.Mode) (Reply, error) {
	if !r.useJSON {
		return r.plain(ctx, msgs, mode)
	}

	raw, err := r.provider.Complete(ctx, msgs, mode, true)
	if err != nil {
		return Reply{}, err
	}
	text, err := ParseJSONReply(raw)
	if err == nil {
		r.jsonOK.Add(1)
		return finish(text), nil
	}

	r.jsonFailed.Add(1)
	r.log.Warn().Err(err).Str("mode", string(mode)).Msg("structured reply rejected")
	if !r.fallback {
		return Reply{Text: Apology, Apology: true}, nil
	}

	r.jsonFallbacks.Add(1)
	rep, err := r.plain(ctx, msgs, mode)
	if err != nil {
		r.log.Error().Err(err).Msg("plain fallback failed")
		return Reply{Text: Apology, Apology: true}, nil
	}
	return rep, nil
}

func (r *Responder) plain(ctx context.Context, msgs []Message, mode st.Mode) (Reply, error) {
	raw, err := r.provider.Complete(ctx, msgs, mode, false)
	if err != nil {
		return Reply{}, err
	}
	rep := finish(raw)
	if rep.Text == "" {
		return Reply{Text: Apology, Apology: true}, nil
	}
	return rep, nil
}

func finish(text string) Reply {
	if HasFormatViolation(text) {
		return Reply{Text: CleanReply(text), Violation: true}
	}
	return Reply{Text: strings.TrimSpace(text)}
}

// ParseJSONReply extracts the "response" field. Code fences around the
// object are tolerated.
func ParseJSONReply(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var payload struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if payload.Response == nil {
		return "", fmt.Errorf("%w: no response field", ErrMalformed)
	}
	text := strings.TrimSpace(*payload.Response)
	if text == "" {
		return "", fmt.Errorf("%w: empty response field", ErrMalformed)
	}
	return text, nil
}

// IsTransient reports whether err is worth telling the user to retry later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection)
}
