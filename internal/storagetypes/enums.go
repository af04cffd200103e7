package storagetypes

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMode           = errors.New("unknown mode")
	ErrUnknownRole           = errors.New("unknown role")
	ErrUnknownInitiationType = errors.New("unknown initiation type")
	ErrUnknownStatus         = errors.New("unknown status")
	ErrUnknownMemoryType     = errors.New("unknown memory type")
)

// Mode is the conversational register attached to history rows and LLM calls.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeExpert    Mode = "expert"
	ModeWriter    Mode = "writer"
	ModeTalk      Mode = "talk"
	ModeProactive Mode = "proactive"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeExpert, ModeWriter, ModeTalk, ModeProactive:
		return true
	default:
		return false
	}
}

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

type InitiationType string

const (
	InitiationContinuation InitiationType = "continuation"
	InitiationInsight      InitiationType = "insight"
	InitiationSupportive   InitiationType = "supportive"
)

// InitiationTypes lists every initiation type in mining order.
var InitiationTypes = []InitiationType{InitiationContinuation, InitiationInsight, InitiationSupportive}

func (t InitiationType) Valid() bool {
	switch t {
	case InitiationContinuation, InitiationInsight, InitiationSupportive:
		return true
	default:
		return false
	}
}

func ParseInitiationType(s string) (InitiationType, error) {
	t := InitiationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownInitiationType, s)
	}
	return t, nil
}

// Status of a schedule row. pending is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

type MemoryType string

const (
	MemoryUserSaved MemoryType = "user_saved"
	MemoryAutoSaved MemoryType = "auto_saved"
)

func (t MemoryType) Valid() bool {
	switch t {
	case MemoryUserSaved, MemoryAutoSaved:
		return true
	default:
		return false
	}
}

func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMemoryType, s)
	}
	return t, nil
}
