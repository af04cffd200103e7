package initiation

import (
	"slices"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var (
	english = stopwords.MustGet("en")
	russian = stopwords.MustGet("ru")
)

func isStopword(w string) bool {
	return russian.Contains(w) || english.Contains(w)
}

// words splits text into lower-cased tokens with surrounding punctuation removed.
func words(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func wordSet(text string, dropStopwords bool) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(text) {
		if dropStopwords && isStopword(w) {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// Keywords returns the distinct non-stopword tokens of text.
func Keywords(text string) map[string]struct{} {
	return wordSet(text, true)
}

// Similarity is the Jaccard index of the two texts' word sets, stopwords
// excluded. Either set empty gives 0.
func Similarity(a, b string) float64 {
	wa, wb := wordSet(a, true), wordSet(b, true)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// SharedConcepts lists up to five words longer than four letters that both
// texts use, in alphabetical order.
func SharedConcepts(a, b string) []string {
	wa, wb := wordSet(a, false), wordSet(b, false)
	var out []string
	for w := range wa {
		if _, ok := wb[w]; ok && len([]rune(w)) > 4 {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return out[:min(5, len(out))]
}

type topic struct {
	name     string
	keywords []string
}

var topics = []topic{
	{"literature", []string{"book", "story", "novel", "writer", "pavić", "pavic", "borges", "книга", "рассказ", "роман", "писатель", "павич", "борхес"}},
	{"philosophy", []string{"meaning", "life", "time", "being", "consciousness", "смысл", "жизнь", "время", "бытие", "сознание"}},
	{"creativity", []string{"write", "create", "idea", "project", "писать", "создать", "идея", "проект", "творить"}},
	{"emotions", []string{"feeling", "joy", "sadness", "love", "fear", "чувство", "радость", "грусть", "любовь", "страх"}},
	{"history", []string{"past", "history", "memory", "recollection", "прошлое", "история", "память", "воспоминание"}},
	{"magic", []string{"magic", "mystic", "mystery", "symbol", "sign", "магия", "мистика", "тайна", "символ", "знак"}},
}

// MainTopic names the theme of text by keyword, or falls back to its first
// three long words.
func MainTopic(text string) string {
	ws := words(text)
	for _, t := range topics {
		for _, w := range ws {
			for _, k := range t.keywords {
				if strings.HasPrefix(w, k) {
					return t.name
				}
			}
		}
	}
	var long []string
	for _, w := range ws {
		if len([]rune(w)) > 4 {
			long = append(long, w)
			if len(long) == 3 {
				break
			}
		}
	}
	if len(long) == 0 {
		return "conversation"
	}
	return strings.Join(long, " ")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
