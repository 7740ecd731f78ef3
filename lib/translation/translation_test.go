package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	cases := map[string]string{
		"en":          "en",
		"it_IT.UTF-8": "it",
		"C.UTF-8":     "en",
		"POSIX":       "en",
		"":            "en",
	}
	for in, want := range cases {
		Configure("../../locales", in)
		assert.Equal(t, want, GetLanguage(), "language %q", in)
		assert.NotEqual(t, "help_message", Translate("help_message"), "language %q", in)
	}
}

func TestMarkdown(t *testing.T) {
	Configure("../../locales", "en")
	assert.Contains(t, Markdown("alert_crossed_above", "BTP", "IT0005648149", "100.00", "100.25"), `100\.25`)
}
