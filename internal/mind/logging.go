package mind

import (
	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/logging"
	st "github.com/keshon/himera/internal/storagetypes"
)

// logPrompt traces the assembled prompt right before the model call. It is a
// no-op unless the logger is at debug level.
func logPrompt(log zerolog.Logger, userID int64, mode st.Mode, msgs []ai.Message) {
	if log.GetLevel() > zerolog.DebugLevel || len(msgs) == 0 {
		return
	}
	log.Debug().Str("action", "prompt").Int64("user", userID).Str("mode", string(mode)).
		Int("messages", len(msgs)).Int("system_len", len(msgs[0].Content)).
		Str("system", logging.Preview(msgs[0].Content, 500)).Msg("prompt assembled")
	for i, m := range msgs[1:] {
		log.Debug().Int("i", i+1).Str("role", string(m.Role)).Int("len", len(m.Content)).
			Str("content", logging.Preview(m.Content, 200)).Msg("prompt message")
	}
}
