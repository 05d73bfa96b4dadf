package notification

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_]+)\.([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// remapped placeholders whose value lives under a different path.
var remapped = map[string]string{
	"appointment.insurance":        "appointment.details.insurance",
	"appointment.referring_doctor": "appointment.details.referring_doctor",
	"appointment.notes":            "appointment.details.notes",
	"appointment.date":             "appointment.start_time",
	"appointment.start":            "appointment.start_time",
	"appointment.end":              "appointment.end_time",
	"examination.duration":         "examination.duration_minutes",
	"patient.firstname":            "patient.first_name",
	"patient.lastname":             "patient.last_name",
	"patient.date_of_birth":        "patient.birth_date",
}

// Renderer substitutes {{category.field}} tokens.
type Renderer struct {
	Locale   Locale
	Location *time.Location
}

func NewRenderer(l Locale, loc *time.Location) Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return Renderer{Locale: l, Location: loc}
}

// Render replaces every token in text. A token without a value becomes
// "[example]" from the catalog, or "[category.field]" when it is not in
// the catalog.
func (r Renderer) Render(text string, c Context) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(tok string) string {
		m := placeholderPattern.FindStringSubmatch(tok)
		key := placeholderKey(m[1], m[2])
		if v, ok := r.resolve(key, c); ok {
			return v
		}
		if p, ok := catalogIndex[key]; ok {
			return "[" + p.Example + "]"
		}
		return "[" + key + "]"
	})
}

// placeholderKey lowercases the category and turns camelCase field segments
// into snake_case, so {{Patient.firstName}} looks up patient.first_name.
func placeholderKey(category, field string) string {
	return strings.ToLower(category) + "." + snakeCase(field)
}

func snakeCase(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				prev := s[i-1]
				if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
					b.WriteByte('_')
				}
			}
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (r Renderer) resolve(key string, c Context) (string, bool) {
	switch key {
	case "patient.salutation":
		return r.salutation(c)
	case "patient.full_name":
		return fullName(c)
	}
	path := key
	if p, ok := remapped[key]; ok {
		path = p
	}
	v, ok := c.Lookup(path)
	if !ok {
		return "", false
	}
	s := r.format(path, v)
	return s, s != ""
}

func (r Renderer) format(path string, v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case bool:
		return formatBool(x, r.Locale)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		if strings.HasSuffix(path, "_date") {
			return formatDate(x, r.Locale)
		}
		return formatDateTime(x, r.Locale, r.Location)
	case *time.Time:
		if x == nil {
			return ""
		}
		return r.format(path, *x)
	default:
		return fmt.Sprint(x)
	}
}

func patientString(c Context, field string) string {
	v, ok := c.Lookup("patient." + field)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func fullName(c Context) (string, bool) {
	name := strings.TrimSpace(patientString(c, "first_name") + " " + patientString(c, "last_name"))
	return name, name != ""
}

// salutation addresses the patient by gender, title and last name, falling
// back to a neutral greeting with the full name.
func (r Renderer) salutation(c Context) (string, bool) {
	last := patientString(c, "last_name")
	title := patientString(c, "title")
	if title != "" {
		last = title + " " + last
	}
	gender := patientString(c, "gender")
	if patientString(c, "last_name") != "" && (gender == "male" || gender == "female") {
		switch {
		case r.Locale == LocaleEnglish && gender == "male":
			return "Dear Mr. " + last, true
		case r.Locale == LocaleEnglish:
			return "Dear Ms. " + last, true
		case gender == "male":
			return "Sehr geehrter Herr " + last, true
		default:
			return "Sehr geehrte Frau " + last, true
		}
	}
	name, ok := fullName(c)
	if !ok {
		return "", false
	}
	if r.Locale == LocaleEnglish {
		return "Dear " + name, true
	}
	return "Guten Tag " + name, true
}
