package ai

import (
	"context"
	"errors"

	st "github.com/keshon/himera/internal/storagetypes"
)

var (
	ErrTimeout    = errors.New("language model timed out")
	ErrConnection = errors.New("language model unreachable")
	ErrAPI        = errors.New("language model api error")
	ErrEmpty      = errors.New("language model returned no content")
	ErrMalformed  = errors.New("language model reply is malformed")
)

type Message struct {
	Role    st.Role `json:"role"`
	Content string  `json:"content"`
}

func System(content string) Message    { return Message{Role: st.RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: st.RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: st.RoleAssistant, Content: content} }

// Provider is the outbound chat-completion call. jsonMode asks for a
// {"response": "..."} object instead of free text.
type Provider interface {
	Complete(ctx context.Context, msgs []Message, mode st.Mode, jsonMode bool) (string, error)
}

// Params are the sampling settings used for one mode.
type Params struct {
	Temperature      float64
	TopP             float64
	MaxTokens        int64
	FrequencyPenalty float64
	PresencePenalty  float64
}

var modeParams = map[st.Mode]Params{
	st.ModeAuto:   {Temperature: 0.82, TopP: 0.85, MaxTokens: 1800, FrequencyPenalty: 0.4, PresencePenalty: 0.65},
	st.ModeExpert: {Temperature: 0.55, TopP: 0.8, MaxTokens: 3000, FrequencyPenalty: 0.65, PresencePenalty: 0.72},
	st.ModeWriter: {Temperature: 0.75, TopP: 0.97, MaxTokens: 3000, FrequencyPenalty: 0.25, PresencePenalty: 0.78},
	st.ModeTalk:   {Temperature: 0.92, TopP: 0.92, MaxTokens: 1800, FrequencyPenalty: 0.35, PresencePenalty: 0.5},
}

// ParamsFor returns the sampling settings of mode. Proactive messages speak
// in the talk register; anything unknown falls back to auto.
func ParamsFor(mode st.Mode) Params {
	if mode == st.ModeProactive {
		mode = st.ModeTalk
	}
	if p, ok := modeParams[mode]; ok {
		return p
	}
	return modeParams[st.ModeAuto]
}
