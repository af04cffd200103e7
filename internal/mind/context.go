package mind

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/injection"
	st "github.com/keshon/himera/internal/storagetypes"
)

const (
	emotionWindow    = 3
	memoryQueryChars = 200
	memoryReplyChars = 300
)

// baseReminder is the fixed steering note used when the adaptive engine is
// off or fails, and after a reply that broke the format.
const baseReminder = "You are Chimera. Keep a natural, living tone in every mode. Irony, intellectual daring, independence and strength are your qualities."

// TrimToChars truncates s to maxChars runes, cutting at a word boundary when
// one falls in the second half.
func TrimToChars(s string, maxChars int) string {
	r := []rune(s)
	if maxChars <= 0 || len(r) <= maxChars {
		return s
	}
	out := string(r[:maxChars])
	if i := strings.LastIndex(out, " "); i > len(out)/2 {
		out = out[:i]
	}
	return strings.TrimSpace(out) + "..."
}

// EmotionalContext names the user's last three labelled emotions.
func EmotionalContext(history []st.HistoryEntry) string {
	var labels []string
	for _, h := range history {
		if h.Role == st.RoleUser && h.Emotion != "" {
			labels = append(labels, h.Emotion)
		}
	}
	labels = labels[max(0, len(labels)-emotionWindow):]
	if len(labels) == 0 {
		labels = []string{emotion.Neutral}
	}
	return "EMOTIONAL CONTEXT: the user's latest emotions are " + strings.Join(labels, ", ") + "."
}

// MemoryBlock renders personal memories as examples for the model.
func MemoryBlock(memories []st.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("LONG-TERM MEMORY\n\nPersonal memories of this user:\n")
	for i, m := range memories {
		fmt.Fprintf(&b, "\nExample %d (importance %d):\nRequest: %s\nReply: %s\n",
			i+1, m.Importance, TrimToChars(m.UserMessage, memoryQueryChars), TrimToChars(m.BotResponse, memoryReplyChars))
	}
	b.WriteString("\nUse these examples to understand the user's preferences and way of talking.")
	return b.String()
}

func lastLabel(history []st.HistoryEntry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == st.RoleUser && history[i].Emotion != "" {
			return history[i].Emotion
		}
	}
	return emotion.Neutral
}

func lastAssistant(history []st.HistoryEntry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == st.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}

type turn struct {
	userID     int64
	text       string
	mode       st.Mode
	history    []st.HistoryEntry
	authorized bool
}

// buildContext assembles the model input: persona, emotional context,
// relevant memories, an optional injection, then the dialogue itself.
func (p *Pipeline) buildContext(ctx context.Context, t turn) ([]ai.Message, bool) {
	msgs := []ai.Message{
		ai.System(ai.SystemPrompt(t.mode)),
		ai.System(EmotionalContext(t.history)),
	}

	memories := p.searchMemories(ctx, t.userID, t.text)
	if block := MemoryBlock(memories); block != "" {
		msgs = append(msgs, ai.System(block))
	}

	injected := false
	if reminder, ok := p.injectionFor(ctx, t, memories); ok {
		msgs = append(msgs, ai.System(reminder))
		injected = true
	}

	for _, h := range t.history {
		msgs = append(msgs, ai.Message{Role: h.Role, Content: h.Content})
	}
	return msgs, injected
}

func (p *Pipeline) injectionFor(ctx context.Context, t turn, memories []st.Memory) (string, bool) {
	if p.injection == nil || !p.injection.Enabled() {
		return "", false
	}
	violation := injection.DetectViolation(lastAssistant(t.history))
	if violation == injection.NoViolation {
		entropy := injection.Entropy(t.history)
		if !p.injection.ShouldInject(ctx, t.userID, entropy) {
			return "", false
		}
	}

	req := injection.Request{
		UserID:     t.userID,
		Mode:       t.mode,
		Emotion:    lastLabel(t.history),
		History:    t.history,
		Violation:  violation,
		Authorized: t.authorized,
	}
	if t.authorized {
		req.Memories = memories
	}
	res, err := p.injection.Generate(ctx, req)
	if err != nil {
		p.log.Warn().Err(err).Int64("user", t.userID).Msg("injection failed, using base reminder")
		return baseReminder, true
	}
	p.log.Info().Str("action", "inject").Int64("user", t.userID).Str("violation", string(violation)).
		Bool("cached", res.Cached).Int("tokens", res.Tokens).Dur("latency", res.Latency).Msg("injection applied")
	return res.Text, true
}
