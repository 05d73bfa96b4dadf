package notification

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Locale selects the phrasing and date format of rendered text.
type Locale string

const (
	LocaleGerman  Locale = "de"
	LocaleEnglish Locale = "en"
)

var localeMatcher = language.NewMatcher([]language.Tag{language.German, language.English})

// ParseLocale negotiates a configured or requested locale ("de-AT",
// "en-GB,en;q=0.8", ...) down to a supported one. Unknown input falls back
// to German.
func ParseLocale(s string) Locale {
	tag, _ := language.MatchStrings(localeMatcher, s)
	base, _ := tag.Base()
	if base.String() == "en" {
		return LocaleEnglish
	}
	return LocaleGerman
}

var germanWeekdays = [...]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"}

var germanMonths = [...]string{"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember"}

// formatDateTime renders t as a long date with time in loc.
func formatDateTime(t time.Time, l Locale, loc *time.Location) string {
	t = t.In(loc)
	if l == LocaleEnglish {
		return t.Format("Monday, January 2, 2006 at 3:04 PM")
	}
	return fmt.Sprintf("%s, %d. %s %d, %02d:%02d Uhr",
		germanWeekdays[t.Weekday()], t.Day(), germanMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// formatDate renders a calendar date without time. Dates carry no zone of
// their own, so they are not converted.
func formatDate(t time.Time, l Locale) string {
	if l == LocaleEnglish {
		return t.Format("January 2, 2006")
	}
	return fmt.Sprintf("%d. %s %d", t.Day(), germanMonths[t.Month()-1], t.Year())
}

func formatBool(b bool, l Locale) string {
	switch {
	case l == LocaleEnglish && b:
		return "Yes"
	case l == LocaleEnglish:
		return "No"
	case b:
		return "Ja"
	default:
		return "Nein"
	}
}
