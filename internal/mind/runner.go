// Package mind runs one chat turn: mode detection, context building with
// long-term memory and adaptive injections, the model call, and the
// bookkeeping that follows (history, auto-save, reply correlation).
package mind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/initiation"
	"github.com/keshon/himera/internal/injection"
	"github.com/keshon/himera/internal/logging"
	"github.com/keshon/himera/internal/storage"
	st "github.com/keshon/himera/internal/storagetypes"
)

const (
	DefaultImportance = 7
	rememberScan      = 10
)

var ErrNothingToRemember = errors.New("no question and answer pair to remember yet")

type Deps struct {
	Store      storage.Store
	Responder  *ai.Responder
	Emotions   *emotion.Safe
	Injection  *injection.Engine
	Correlator *initiation.Correlator
	Auth       auth.Authorizer
	Memory     config.Memory
	Clock      func() time.Time
	Log        zerolog.Logger
}

// Pipeline handles user messages. One instance serves every user.
type Pipeline struct {
	store      storage.Store
	responder  *ai.Responder
	emotions   *emotion.Safe
	injection  *injection.Engine
	correlator *initiation.Correlator
	auth       auth.Authorizer
	cfg        config.Memory
	states     *States
	rules      *AutoSaveRules
	now        func() time.Time
	log        zerolog.Logger
}

func New(d Deps) (*Pipeline, error) {
	rules, err := NewAutoSaveRules()
	if err != nil {
		return nil, err
	}
	now := d.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		store:      d.Store,
		responder:  d.Responder,
		emotions:   d.Emotions,
		injection:  d.Injection,
		correlator: d.Correlator,
		auth:       d.Auth,
		cfg:        d.Memory,
		states:     NewStates(),
		rules:      rules,
		now:        now,
		log:        d.Log.With().Str("component", "mind").Logger(),
	}, nil
}

// Outcome is the result of one handled message.
type Outcome struct {
	Text      string
	Mode      st.Mode
	Emotion   emotion.Result
	Injected  bool
	Violation bool
	// AutoSaved is the id of the memory saved from this turn, 0 if none.
	AutoSaved  int64
	Correlated bool
}

// HandleMessage answers text from userID. On a transport failure the
// returned Outcome carries the apology text along with the error.
func (p *Pipeline) HandleMessage(ctx context.Context, userID int64, text string) (Outcome, error) {
	if p.injection != nil {
		p.injection.TouchActivity(ctx, userID)
	}
	authorized := p.auth.IsAuthorized(ctx, userID)

	out := Outcome{
		Mode:    p.states.DetectMode(userID, text),
		Emotion: p.emotions.Classify(ctx, text),
	}
	p.log.Info().Str("action", "message").Int64("user", userID).Str("mode", string(out.Mode)).
		Str("emotion", out.Emotion.Label).Str("text", logging.Preview(text, 100)).Msg("message received")

	conf := out.Emotion.Confidence
	if _, err := p.store.AppendHistory(ctx, st.HistoryEntry{
		UserID:     userID,
		Role:       st.RoleUser,
		Content:    text,
		Emotion:    out.Emotion.Label,
		Confidence: &conf,
		Mode:       out.Mode,
		CreatedAt:  p.now(),
	}); err != nil {
		return out, fmt.Errorf("append user turn: %w", err)
	}
	out.Correlated = p.correlate(ctx, userID, text, out.Emotion.Label)

	history, err := p.store.RecentHistory(ctx, userID, p.cfg.HistoryLimit)
	if err != nil {
		return out, fmt.Errorf("recent history: %w", err)
	}

	msgs, injected := p.buildContext(ctx, turn{userID: userID, text: text, mode: out.Mode, history: history, authorized: authorized})
	out.Injected = injected
	logPrompt(p.log, userID, out.Mode, msgs)

	reply, err := p.responder.Respond(ctx, msgs, out.Mode)
	if err != nil {
		out.Text = ai.Apology
		return out, fmt.Errorf("respond: %w", err)
	}
	out.Text, out.Violation = reply.Text, reply.Violation

	if reply.Violation {
		p.appendTurn(ctx, userID, st.RoleSystem, baseReminder, out.Mode)
	}
	p.appendTurn(ctx, userID, st.RoleAssistant, reply.Text, out.Mode)

	if authorized && !reply.Apology {
		out.AutoSaved = p.autoSave(ctx, userID, text, reply.Text, out.Emotion.Label)
	}

	return out, nil
}

// correlate marks text as the reply to a pending initiation. It runs before
// the model call so a failed completion still counts as an answer.
func (p *Pipeline) correlate(ctx context.Context, userID int64, text, label string) bool {
	if p.correlator == nil {
		return false
	}
	ok, err := p.correlator.OnUserMessage(ctx, userID, text, label)
	if err != nil {
		p.log.Error().Err(err).Int64("user", userID).Msg("reply correlation failed")
	}
	return ok
}

func (p *Pipeline) appendTurn(ctx context.Context, userID int64, role st.Role, content string, mode st.Mode) {
	if _, err := p.store.AppendHistory(ctx, st.HistoryEntry{
		UserID: userID, Role: role, Content: content, Mode: mode, CreatedAt: p.now(),
	}); err != nil {
		p.log.Error().Err(err).Int64("user", userID).Str("role", string(role)).Msg("history append failed")
	}
}

// autoSave keeps the exchange when it qualifies and the user is under the
// daily limit. It returns the new memory id or 0.
func (p *Pipeline) autoSave(ctx context.Context, userID int64, userMsg, reply, label string) int64 {
	if !p.rules.Worth(label, userMsg) {
		return 0
	}
	now := p.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n, err := p.store.CountMemoriesSince(ctx, userID, st.MemoryAutoSaved, today)
	if err != nil {
		p.log.Warn().Err(err).Int64("user", userID).Msg("auto-save limit unavailable")
		return 0
	}
	if n >= p.cfg.MaxAutoSavesPerDay {
		p.log.Debug().Int64("user", userID).Int("count", n).Msg("auto-save limit reached")
		return 0
	}

	markers := StyleMarkers(userMsg + " " + reply)
	id, err := p.store.SaveMemory(ctx, st.Memory{
		UserID:       userID,
		UserMessage:  userMsg,
		BotResponse:  reply,
		Importance:   p.cfg.AutoSaveImportance,
		Type:         st.MemoryAutoSaved,
		StyleMarkers: &markers,
		Tags:         ContextualTags(userMsg, reply, label),
		CreatedAt:    now,
	})
	if err != nil {
		p.log.Error().Err(err).Int64("user", userID).Msg("auto-save failed")
		return 0
	}
	p.log.Info().Str("action", "autosave").Int64("user", userID).Int64("memory", id).Str("emotion", label).Msg("exchange saved")
	return id
}

// Remember saves the user's latest question and answer as a user_saved
// memory. Unauthorized users get auth.ErrUnauthorized.
func (p *Pipeline) Remember(ctx context.Context, userID int64, importance int) (st.Memory, error) {
	if !p.auth.IsAuthorized(ctx, userID) {
		return st.Memory{}, auth.ErrUnauthorized
	}
	if importance < 1 || importance > 10 {
		return st.Memory{}, storage.ErrInvalidImportance
	}
	history, err := p.store.RecentHistory(ctx, userID, rememberScan)
	if err != nil {
		return st.Memory{}, fmt.Errorf("recent history: %w", err)
	}

	var question, answer string
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if answer == "" {
			if h.Role == st.RoleAssistant {
				answer = h.Content
			}
			continue
		}
		if h.Role == st.RoleUser {
			question = h.Content
			break
		}
	}
	if question == "" || answer == "" {
		return st.Memory{}, ErrNothingToRemember
	}

	markers := StyleMarkers(question + " " + answer)
	m := st.Memory{
		UserID:       userID,
		UserMessage:  question,
		BotResponse:  answer,
		Importance:   importance,
		Type:         st.MemoryUserSaved,
		StyleMarkers: &markers,
		Tags:         ContextualTags(question, answer, ""),
		CreatedAt:    p.now(),
	}
	if m.ID, err = p.store.SaveMemory(ctx, m); err != nil {
		return st.Memory{}, err
	}
	p.log.Info().Str("action", "remember").Int64("user", userID).Int64("memory", m.ID).Int("importance", importance).Msg("memory saved")
	return m, nil
}

// AutoSaveQuota reports today's auto-save count and the daily limit.
func (p *Pipeline) AutoSaveQuota(ctx context.Context, userID int64) (int, int, error) {
	now := p.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n, err := p.store.CountMemoriesSince(ctx, userID, st.MemoryAutoSaved, today)
	return n, p.cfg.MaxAutoSavesPerDay, err
}
