package settings

import "strings"

// FieldType selects how a field value is validated and rendered.
type FieldType string

const (
	TypeToggle   FieldType = "toggle"
	TypeSelect   FieldType = "select"
	TypeTextarea FieldType = "textarea"
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
)

// Option is one choice of a select field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field describes a registered setting.
type Field struct {
	Section     string         `json:"section"`
	Key         string         `json:"key"`
	Title       string         `json:"title"`
	Desc        string         `json:"desc,omitempty"`
	Type        FieldType      `json:"type"`
	Default     any            `json:"default,omitempty"`
	DefaultFunc func() any     `json:"-"`
	Options     []Option       `json:"options,omitempty"`
	Require     map[string]any `json:"require,omitempty"`
	Min         *int           `json:"min,omitempty"`
	Max         *int           `json:"max,omitempty"`
}

// DefaultValue evaluates the field default.
func (f Field) DefaultValue() any {
	if f.DefaultFunc != nil {
		return f.DefaultFunc()
	}
	return f.Default
}

func (f Field) hasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Section groups fields under a settings page tab.
type Section struct {
	Slug   string   `json:"slug"`
	Title  string   `json:"title"`
	Desc   string   `json:"desc,omitempty"`
	Fields []string `json:"fields"`
}

// Registry holds sections and their fields in registration order.
type Registry struct {
	sections []Section
	fields   map[string]Field
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fields: make(map[string]Field)}
}

// AddSection registers a section. Re-registering a slug updates its title.
func (r *Registry) AddSection(slug, title, desc string) {
	for i := range r.sections {
		if r.sections[i].Slug == slug {
			r.sections[i].Title = title
			r.sections[i].Desc = desc
			return
		}
	}
	r.sections = append(r.sections, Section{Slug: slug, Title: title, Desc: desc})
}

// AddField registers a field in section. The section is created when missing.
func (r *Registry) AddField(section string, field Field) {
	field.Section = section
	key := strings.TrimSpace(field.Key)
	if key == "" {
		return
	}
	idx := -1
	for i := range r.sections {
		if r.sections[i].Slug == section {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.sections = append(r.sections, Section{Slug: section, Title: section})
		idx = len(r.sections) - 1
	}
	if _, exists := r.fields[key]; !exists {
		r.order = append(r.order, key)
		r.sections[idx].Fields = append(r.sections[idx].Fields, key)
	}
	r.fields[key] = field
}

// Field returns a field by key.
func (r *Registry) Field(key string) (Field, bool) {
	f, ok := r.fields[key]
	return f, ok
}

// Fields returns every field in registration order.
func (r *Registry) Fields() []Field {
	out := make([]Field, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.fields[key])
	}
	return out
}

// Sections returns the registered sections.
func (r *Registry) Sections() []Section {
	return append([]Section(nil), r.sections...)
}
