package mind

import (
	"regexp"
	"strings"

	st "github.com/keshon/himera/internal/storagetypes"
)

// Phrases that switch the mode explicitly. The match is on the whole
// message, lower-cased and trimmed.
var switchPhrases = map[string]st.Mode{
	"expert mode":    st.ModeExpert,
	"let's analyze":  st.ModeExpert,
	"анализируем":    st.ModeExpert,
	"режим эксперта": st.ModeExpert,
	"writer mode":    st.ModeWriter,
	"let's write":    st.ModeWriter,
	"пишем":          st.ModeWriter,
	"режим писателя": st.ModeWriter,
	"talk mode":      st.ModeTalk,
	"let's talk":     st.ModeTalk,
	"поболтаем":      st.ModeTalk,
	"режим беседы":   st.ModeTalk,
	"auto":           st.ModeAuto,
	"авто":           st.ModeAuto,
}

// expertTriggers pairs a request verb with the subject words that make it
// an analytical request. Both must appear.
var expertTriggers = map[string][]string{
	"analyze":        {"structure", "composition", "symbol", "text", "style", "character"},
	"explain":        {"meaning", "subtext", "metaphor"},
	"how to improve": {"scene", "dialogue", "description"},
	"critique":       {"edit", "weak spot", "mistake"},
	"разбери":        {"структур", "композици", "символ"},
	"объясни":        {"значени", "подтекст", "метафор"},
	"анализ":         {"текст", "стиль", "персонаж"},
	"как улучшить":   {"сцен", "диалог", "описан"},
	"критика":        {"правк", "слабое место", "ошибк"},
}

var writerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`write (a |the )?(scene|fragment|dialogue|description) .+`),
	regexp.MustCompile(`continue (the )?(story|text|plot) .+`),
	regexp.MustCompile(`describe .+ (in the style of|like pavić|like pavic|in the spirit of borges)`),
	regexp.MustCompile(`create (a |the )?(character|image) .+`),
	regexp.MustCompile(`напиши (сцену|фрагмент|диалог|описание) .+`),
	regexp.MustCompile(`продолжи (историю|текст|сюжет) .+`),
	regexp.MustCompile(`описать .+ (в стиле|как у павича|в духе борхеса)`),
	regexp.MustCompile(`создай (персонажа|образ) .+`),
	regexp.MustCompile(`развитие сюжета .+`),
}

var talkIndicators = []string{
	"how are you", "what do you think", "your opinion", "tell me about yourself",
	"what if", "imagine", "guess", "joke", "riddle", "amazing", "how interesting",
	"как твои дела", "что ты думаешь", "твое мнение", "расскажи о себе", "как настроение",
	"а если бы", "представь что", "вообрази", "это потрясающе", "как интересно",
	"удивительно", "поспорим", "угадай", "шутк", "загадк",
}

var talkPrefixes = []string{"and ", "but ", "а ", "но ", "и "}

// DetectMode picks the reply mode for text. An explicit switch phrase sets
// the user's sticky mode; a sticky mode other than auto wins over the
// heuristics.
func (s *States) DetectMode(userID int64, text string) st.Mode {
	t := strings.ToLower(strings.TrimSpace(text))
	if m, ok := switchPhrases[t]; ok {
		s.SetMode(userID, m)
		if m != st.ModeAuto {
			return m
		}
	}
	if m := s.Mode(userID); m != st.ModeAuto {
		return m
	}
	return Classify(t)
}

// Classify guesses a mode from lower-cased text alone.
func Classify(t string) st.Mode {
	switch {
	case isExpert(t):
		return st.ModeExpert
	case isWriter(t):
		return st.ModeWriter
	case isTalk(t):
		return st.ModeTalk
	default:
		return st.ModeAuto
	}
}

func isExpert(t string) bool {
	for trigger, subjects := range expertTriggers {
		if !strings.Contains(t, trigger) {
			continue
		}
		for _, s := range subjects {
			if strings.Contains(t, s) {
				return true
			}
		}
	}
	return false
}

func isWriter(t string) bool {
	for _, re := range writerPatterns {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

func isTalk(t string) bool {
	for _, p := range talkPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	for _, ind := range talkIndicators {
		if strings.Contains(t, ind) {
			return true
		}
	}
	return false
}
