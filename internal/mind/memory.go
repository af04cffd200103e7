package mind

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"

	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/initiation"
	st "github.com/keshon/himera/internal/storagetypes"
)

const (
	relevantLimit = 3
	searchPool    = 200
)

// RelevantMemories returns up to limit of the user's memories sharing the
// most keywords with query. Ties go to the more important, then the newer
// memory. Memories sharing nothing are never returned.
func RelevantMemories(query string, memories []st.Memory, limit int) []st.Memory {
	q := initiation.Keywords(query)
	if len(q) == 0 {
		return nil
	}
	type scored struct {
		mem   st.Memory
		score int
	}
	var hits []scored
	for _, m := range memories {
		n := 0
		for w := range initiation.Keywords(m.UserMessage + " " + m.BotResponse) {
			if _, ok := q[w]; ok {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{m, n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.mem.Importance != b.mem.Importance {
			return a.mem.Importance > b.mem.Importance
		}
		return a.mem.CreatedAt.After(b.mem.CreatedAt)
	})
	out := make([]st.Memory, 0, min(limit, len(hits)))
	for _, h := range hits[:min(limit, len(hits))] {
		out = append(out, h.mem)
	}
	return out
}

// searchMemories loads the user's recent memories, ranks them against query
// and bumps the access counters of the ones returned.
func (p *Pipeline) searchMemories(ctx context.Context, userID int64, query string) []st.Memory {
	pool, err := p.store.LatestMemories(ctx, userID, searchPool)
	if err != nil {
		p.log.Warn().Err(err).Int64("user", userID).Msg("memory search failed")
		return nil
	}
	found := RelevantMemories(query, pool, relevantLimit)
	if len(found) == 0 {
		return nil
	}
	ids := make([]int64, len(found))
	for i, m := range found {
		ids[i] = m.ID
	}
	if err := p.store.TouchMemories(ctx, ids, p.now()); err != nil {
		p.log.Warn().Err(err).Int64("user", userID).Msg("memory access not recorded")
	}
	return found
}

var (
	magicalRealismCues = []string{
		"ravens", "birds carry", "rumours", "invisible", "mystical", "strange",
		"inexplicable", "as if", "shadow", "ghost",
		"вороны", "птицы разносят", "слухи", "невидимая", "мистический",
		"странный", "необъяснимый", "как будто", "словно", "тень", "призрак",
	}
	balkanCues = []string{
		"zorovica", "rachel", "isaac", "jewish quarter", "orthodox", "mosque", "bazaar", "chestnuts", "church",
		"зоровица", "рахиль", "исаак", "ашкеназка", "еврейский квартал",
		"православный", "мечеть", "базар", "каштаны", "церковь",
	}
	symbolCues = []string{
		"brooch", "pomegranate", "oil lamp", "scrolls", "parchment", "archives", "library", "books", "ring", "amulet",
		"брошь", "гранат", "масляная лампа", "свитки", "пергаменты",
		"архивы", "библиотека", "книги", "кольцо", "амулет",
	}
	tagCues = []string{
		"church", "library", "quarter", "square", "village", "city",
		"keeper", "elder", "brooch", "lamp", "scrolls", "books", "archives",
		"anxiety", "sorrow", "joy", "fear", "wonder", "magical realism", "balkans", "mysticism", "symbolism",
		"церковь", "библиотека", "квартал", "площадь", "село", "город",
		"рахиль", "исаак", "ашкеназка", "хранитель", "старец",
		"брошь", "лампа", "свитки", "книги", "архивы",
		"тревога", "печаль", "радость", "страх", "удивление",
		"магреализм", "балканы", "мистика", "символизм",
	}
)

// StyleMarkers extracts the stylistic markers of a saved exchange.
func StyleMarkers(text string) st.StyleMarkers {
	t := strings.ToLower(text)
	return st.StyleMarkers{
		MagicalRealism:  containsAny(t, magicalRealismCues),
		Balkanisms:      found(t, balkanCues),
		SymbolicObjects: found(t, symbolCues),
	}
}

// ContextualTags lists the search tags of an exchange, plus emotion_<label>
// when label is set.
func ContextualTags(userMsg, botReply, label string) []string {
	tags := found(strings.ToLower(userMsg+" "+botReply), tagCues)
	if label != "" {
		tags = append(tags, "emotion_"+label)
	}
	return tags
}

func found(t string, cues []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range cues {
		if !seen[c] && strings.Contains(t, c) {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func containsAny(t string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(t, c) {
			return true
		}
	}
	return false
}

var (
	greetingExclusions = []string{
		"hi", "hello", "hey", "good morning", "good evening", "good night", "how are you",
		"привет", "здравствуй", "здравствуйте", "добрый день", "доброе утро", "добрый вечер",
		"доброй ночи", "салют", "хай", "ура", "как дела", "как поживаешь",
	}
	exactExclusions = []string{
		"help", "commands", "what can you do", "yes", "no", "ok", "okay", "fine", "got it",
		"thanks", "thank you", "please", "bye", "see you",
		"помощь", "справка", "команды", "что умеешь",
		"да", "нет", "ок", "хорошо", "понятно", "ясно", "согласен", "согласна",
		"спасибо", "пожалуйста", "до свидания", "пока", "увидимся",
	}
	positiveTriggers = []string{
		"amazing", "brilliant", "bravo", "magical", "phenomenal", "you're the best", "love you",
		"huge thanks", "wow!", "mind blown", "you read my mind", "incredible!", "respect!", "beautiful!",
		"потрясающе", "восхитительно", "браво!", "волшебно", "феноменально", "грандиозно", "топчик",
		"огонь!", "пушка!", "огромное спасибо", "респект!", "ты чудо", "ты лучшая", "обожаю тебя",
		"люблю тебя", "вау!", "в шоке!", "балдею!", "ты читаешь мои мысли", "невероятно!", "улет!",
		"кайф!", "зачет!", "имба!", "бомбически", "пять баллов!", "топ!", "лайк!", "красота!",
	}
	// labels some classifiers emit beyond the core set
	extraPositive = map[string]bool{"admiration": true, "excitement": true, "delight": true, "satisfaction": true}
)

// AutoSaveRules decides whether an exchange is worth keeping without being
// asked: not excluded, and either a positive emotion or a praise trigger.
type AutoSaveRules struct {
	triggers *ahocorasick.Automaton
}

func NewAutoSaveRules() (*AutoSaveRules, error) {
	ac, err := ahocorasick.NewBuilder().
		AddStrings(positiveTriggers).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		return nil, fmt.Errorf("auto-save triggers: %w", err)
	}
	return &AutoSaveRules{triggers: ac}, nil
}

// Excluded reports messages never auto-saved: shorter than three
// characters, a bare formality, a greeting or a command.
func Excluded(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if len([]rune(t)) < 3 || strings.HasPrefix(t, "/") {
		return true
	}
	for _, e := range exactExclusions {
		if t == e {
			return true
		}
	}
	for _, g := range greetingExclusions {
		if rest, ok := strings.CutPrefix(t, g); ok && (rest == "" || !unicode.IsLetter([]rune(rest)[0])) {
			return true
		}
	}
	return false
}

func (r *AutoSaveRules) Worth(label, text string) bool {
	if Excluded(text) {
		return false
	}
	if emotion.IsPositive(label) || extraPositive[label] {
		return true
	}
	return len(r.triggers.FindAllOverlapping([]byte(strings.ToLower(text)))) > 0
}
