package ai

import (
	"regexp"
	"strings"
)

var (
	thinkRe     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	emojiRe     = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}]+`)
	markupRe    = regexp.MustCompile("[\\]\\[*_`~<>#=]")
	spacesRe    = regexp.MustCompile(`[ \t]+`)
	lineEdgeRe  = regexp.MustCompile(` *\n *`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
	enumLineRe  = regexp.MustCompile(`(?m)^\s*[\p{L}\d]+[.)\-]\s+`)
	bulletRe    = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
)

// HasFormatViolation reports markdown, enumerations or bullet lines in a reply.
func HasFormatViolation(s string) bool {
	return markupRe.MatchString(s) || enumLineRe.MatchString(s) || bulletRe.MatchString(s)
}

// CleanReply strips reasoning blocks, emoji and markdown and normalises
// whitespace so the reply reads as continuous prose.
func CleanReply(reply string) string {
	reply = thinkRe.ReplaceAllString(reply, "")
	reply = emojiRe.ReplaceAllString(reply, "")
	reply = bulletRe.ReplaceAllString(reply, "")
	reply = markupRe.ReplaceAllString(reply, " ")
	reply = spacesRe.ReplaceAllString(reply, " ")
	reply = lineEdgeRe.ReplaceAllString(reply, "\n")
	reply = blankRunsRe.ReplaceAllString(reply, "\n\n")
	reply = strings.TrimSpace(reply)
	return unquote(reply)
}

func unquote(reply string) string {
	if len(reply) < 2 {
		return reply
	}
	quotes := []struct{ open, close string }{
		{`"`, `"`}, {"“", "”"}, {"«", "»"},
	}
	for _, q := range quotes {
		if !strings.HasPrefix(reply, q.open) || !strings.HasSuffix(reply, q.close) || len(reply) < len(q.open)+len(q.close) {
			continue
		}
		inner := reply[len(q.open) : len(reply)-len(q.close)]
		if !strings.Contains(inner, q.open) && !strings.Contains(inner, q.close) {
			return strings.TrimSpace(inner)
		}
	}
	return reply
}
