// Package lexicon holds the spoken command phrases the orchestrator reacts
// to: trigger words that force-send the accumulated buffer and exit words
// that end the voice session.
package lexicon

import (
	"regexp"
	"strings"
)

// Lexicon matches transcribed fragments against a language's command phrases.
type Lexicon struct {
	lang    string
	trigger *regexp.Regexp
	exit    *regexp.Regexp
	hint    string
}

var languages = map[string]struct {
	triggers []string
	exits    []string
	hint     string
}{
	"en": {
		triggers: []string{"send it", "send that", "send"},
		exits:    []string{"close", "goodbye"},
		hint:     "Nothing to send yet. Say your message first.",
	},
	"tr": {
		triggers: []string{"gönder", "yolla"},
		exits:    []string{"kapat", "görüşürüz"},
		hint:     "Gönderilecek bir şey yok. Önce mesajınızı söyleyin.",
	},
}

// ForLanguage returns the lexicon for a language code, falling back to
// English for unknown codes.
func ForLanguage(lang string) Lexicon {
	code := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.Index(code, "-"); i > 0 {
		code = code[:i]
	}
	entry, ok := languages[code]
	if !ok {
		code = "en"
		entry = languages["en"]
	}
	return Lexicon{
		lang:    code,
		trigger: phrasePattern(entry.triggers),
		exit:    phrasePattern(entry.exits),
		hint:    entry.hint,
	}
}

func phrasePattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)(^|\s)(` + strings.Join(quoted, "|") + `)(\s|[.,!?]|$)`)
}

func (l Lexicon) Language() string { return l.lang }

// MatchExit reports whether the fragment contains an exit phrase.
func (l Lexicon) MatchExit(text string) bool {
	return l.exit.MatchString(normalize(text))
}

// StripTrigger reports whether the fragment contains a trigger phrase and
// returns the fragment with every trigger occurrence removed.
func (l Lexicon) StripTrigger(text string) (string, bool) {
	norm := normalize(text)
	if !l.trigger.MatchString(norm) {
		return norm, false
	}
	cleaned := l.trigger.ReplaceAllString(norm, " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.Trim(cleaned, " .,!?")
	return cleaned, true
}

// EmptySendHint is shown when a trigger word is spoken with nothing buffered.
func (l Lexicon) EmptySendHint() string { return l.hint }

func normalize(text string) string {
	return strings.TrimSpace(text)
}
