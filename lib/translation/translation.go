package translation

import (
	"bond-alert-bot/lib/helpers"
	"os"
	"path/filepath"
	"strings"

	"github.com/leonelquinteros/gotext"
	log "github.com/sirupsen/logrus"
)

const fallbackLanguage = "en"

// Configure loads the default domain of the given language from dir.
// Locale-style values such as "it_IT.UTF-8" are reduced to "it"; languages
// without a catalog in dir fall back to English.
func Configure(dir, lang string) {
	lang = strings.ToLower(lang)
	if i := strings.IndexAny(lang, "_.-"); i > 0 {
		lang = lang[:i]
	}
	if _, err := os.Stat(filepath.Join(dir, lang, "default.po")); err != nil {
		log.Warnf("No translations for language %q in %s, using %s", lang, dir, fallbackLanguage)
		lang = fallbackLanguage
	}
	gotext.Configure(dir, lang, "default")
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}

// Markdown translates msgID and escapes the result for MarkdownV2 messages
func Markdown(msgID string, vars ...interface{}) string {
	return helpers.EscapeMarkdownV2(Translate(msgID, vars...))
}
