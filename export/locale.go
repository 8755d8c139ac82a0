package export

import (
	"time"

	"golang.org/x/text/language"
)

// Locale renders dates and short times the way a host locale does.
type Locale struct {
	Tag        language.Tag
	DateLayout string
	TimeLayout string
}

var (
	EnglishUS = Locale{Tag: language.AmericanEnglish, DateLayout: "1/2/2006", TimeLayout: "03:04 PM"}
	EnglishGB = Locale{Tag: language.BritishEnglish, DateLayout: "02/01/2006", TimeLayout: "15:04"}
	Spanish   = Locale{Tag: language.EuropeanSpanish, DateLayout: "2/1/2006", TimeLayout: "15:04"}
	French    = Locale{Tag: language.French, DateLayout: "02/01/2006", TimeLayout: "15:04"}
	German    = Locale{Tag: language.German, DateLayout: "2.1.2006", TimeLayout: "15:04"}
)

// The first entry is the fallback for unmatched tags.
var supportedLocales = []Locale{EnglishUS, EnglishGB, Spanish, French, German}

var matcher = language.NewMatcher(func() []language.Tag {
	tags := make([]language.Tag, len(supportedLocales))
	for i, l := range supportedLocales {
		tags[i] = l.Tag
	}
	return tags
}())

// LocaleFor picks the closest supported locale for a BCP 47 tag such as "es-MX".
// Empty, malformed or unmatched tags give EnglishUS.
func LocaleFor(tag string) Locale {
	parsed, err := language.Parse(tag)
	if err != nil {
		return EnglishUS
	}
	_, idx, confidence := matcher.Match(parsed)
	if confidence == language.No {
		return EnglishUS
	}
	return supportedLocales[idx]
}

func (l Locale) Date(t time.Time) string {
	return t.Format(l.DateLayout)
}

func (l Locale) Time(t time.Time) string {
	return t.Format(l.TimeLayout)
}
