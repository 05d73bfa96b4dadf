package notification

// Placeholder is one insertable {{category.field}} token.
type Placeholder struct {
	Category string `json:"category"`
	Field    string `json:"field"`
	Label    string `json:"label"`
	Example  string `json:"example"`
}

// Token returns the placeholder as written in a template.
func (p Placeholder) Token() string {
	return "{{" + p.Category + "." + p.Field + "}}"
}

var catalog = []Placeholder{
	{"patient", "salutation", "Salutation", "Sehr geehrte Frau Muster"},
	{"patient", "first_name", "First name", "Erika"},
	{"patient", "last_name", "Last name", "Muster"},
	{"patient", "full_name", "Full name", "Erika Muster"},
	{"patient", "title", "Title", "Dr."},
	{"patient", "birth_date", "Date of birth", "12. März 1964"},
	{"patient", "email", "Email", "erika.muster@example.com"},
	{"patient", "phone", "Phone", "+49 30 1234567"},

	{"examination", "name", "Examination", "MRT Knie"},
	{"examination", "description", "Description", "Kernspintomographie des Kniegelenks"},
	{"examination", "duration_minutes", "Duration (minutes)", "30"},
	{"examination", "preparation", "Preparation", "Bitte nüchtern erscheinen"},

	{"appointment", "start_time", "Start", "Dienstag, 15. April 2025, 14:30 Uhr"},
	{"appointment", "end_time", "End", "Dienstag, 15. April 2025, 15:00 Uhr"},
	{"appointment", "status", "Status", "confirmed"},
	{"appointment", "insurance", "Insurance", "AOK"},
	{"appointment", "referring_doctor", "Referring doctor", "Dr. Schmidt"},
	{"appointment", "notes", "Notes", "Bitte Vorbefunde mitbringen"},

	{"location", "name", "Location", "Praxis Mitte"},
	{"location", "address", "Address", "Friedrichstraße 1, 10117 Berlin"},
	{"location", "phone", "Location phone", "+49 30 7654321"},

	{"device", "name", "Device", "MRT 1"},
	{"device", "model", "Device model", "Siemens Magnetom"},
}

var catalogIndex = func() map[string]Placeholder {
	m := make(map[string]Placeholder, len(catalog))
	for _, p := range catalog {
		m[p.Category+"."+p.Field] = p
	}
	return m
}()

// Catalog returns the placeholders offered by the template editor.
func Catalog() []Placeholder {
	out := make([]Placeholder, len(catalog))
	copy(out, catalog)
	return out
}
