package initiation

import (
	"fmt"
	"strings"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/emotion"
	st "github.com/keshon/himera/internal/storagetypes"
)

const openerPrompt = "You are Chimera. You are starting a conversation with someone you already share a history with. Be natural and never mention that you remembered or analysed anything."

const fallbackPrompt = "Start a friendly conversation that recalls earlier talks."

func recency(days int) string {
	switch {
	case days <= 0:
		return "earlier today"
	case days == 1:
		return "yesterday"
	case days < 5:
		return fmt.Sprintf("%d days ago", days)
	default:
		return "recently"
	}
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func continuationPrompt(c st.InitiationContext, sources []st.Memory) string {
	topic := c.MainTopic
	if topic == "" {
		topic = "a topic"
	}
	msg := c.LastQuestion
	if len(sources) > 0 {
		msg = sources[0].UserMessage
	}
	return fmt.Sprintf(`The user was interested in this topic %s: %s

Their message: "%s"

Start a new conversation that returns to the topic naturally. Offer an unexpected angle, a new thought or a development of the idea. Be concrete and engaging, two or three sentences at most.

Do NOT say "remember" or "we discussed", just open with an interesting thought on the topic.`,
		recency(c.DaysAgo), topic, clipRunes(msg, 200))
}

func insightPrompt(c st.InitiationContext, sources []st.Memory) string {
	if len(sources) < 2 {
		return "Offer an unexpected thought or a connection between topics of past conversations."
	}
	link := "a common idea"
	if len(c.SharedConcepts) > 0 {
		link = strings.Join(c.SharedConcepts[:min(2, len(c.SharedConcepts))], ", ")
	}
	return fmt.Sprintf(`In different conversations the user touched on these topics:
1. %s
2. %s

They are connected through: %s

Open the conversation with an unexpected connection or parallel between the topics. Be perceptive and original, in the spirit of magical realism.

Begin straight away with an intriguing thought, no introductions.`,
		MainTopic(sources[0].UserMessage), MainTopic(sources[1].UserMessage), link)
}

var feelingNames = map[string]string{
	emotion.Sadness: "sadness",
	emotion.Fear:    "anxiety",
	emotion.Anger:   "irritation",
	emotion.Neutral: "pensiveness",
}

func supportivePrompt(c st.InitiationContext) string {
	if c.SupportType == "empathetic" {
		feeling, ok := feelingNames[c.Emotion]
		if !ok {
			feeling = "a low mood"
		}
		return fmt.Sprintf(`Lately the user has been feeling %s.

Start a warm, supportive conversation. Be sensitive but not intrusive. You may offer a distraction towards something inspiring or simply listen.

Avoid platitudes like "everything will be fine". Be sincere.`, feeling)
	}
	return `Start an inspiring conversation that lifts the mood. Share an interesting thought, suggest a creative idea or tell something surprising.

Be positive but natural. No artificial cheerfulness.`
}

// BuildPrompt assembles the messages for one initiation. style is an
// optional personalisation hint.
func BuildPrompt(e st.ScheduleEntry, sources []st.Memory, style string) []ai.Message {
	var body string
	switch e.Type {
	case st.InitiationContinuation:
		body = continuationPrompt(e.Context, sources)
	case st.InitiationInsight:
		body = insightPrompt(e.Context, sources)
	case st.InitiationSupportive:
		body = supportivePrompt(e.Context)
	default:
		body = fallbackPrompt
	}

	msgs := []ai.Message{ai.System(openerPrompt), ai.System(body)}
	if style != "" {
		msgs = append(msgs, ai.System("Conversation style: "+style))
	}
	if e.EmotionContext != "" {
		msgs = append(msgs, ai.System("User's emotional context: "+e.EmotionContext))
	}
	return msgs
}
