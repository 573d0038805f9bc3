package metadata

import (
	"encoding/json"
	"strings"
)

// Template is a clinical authorization form definition. Rules are compiled
// against the field ids and display labels it declares.
type Template struct {
	ID       string    `json:"id"`
	Module   string    `json:"module,omitempty"`
	Name     string    `json:"name"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field is one input of a form section. Decoding is lenient: an id or label
// that is not a JSON string decodes as empty and the field is ignored by the
// rule compiler instead of failing the whole template.
type Field struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required,omitempty"`

	badLabel bool
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		*f = Field{}
		return nil
	}
	*f = Field{
		ID:          stringValue(raw["id"]),
		Label:       stringValue(raw["label"]),
		DisplayName: stringValue(raw["displayName"]),
		Type:        stringValue(raw["type"]),
	}
	if f.DisplayName == "" {
		f.DisplayName = stringValue(raw["display_name"])
	}
	if b, ok := raw["required"].(bool); ok {
		f.Required = b
	}
	for _, key := range []string{"label", "displayName", "display_name"} {
		if v, ok := raw[key]; ok && v != nil {
			if _, isString := v.(string); !isString {
				f.badLabel = true
			}
		}
	}
	return nil
}

// MalformedLabel reports whether the decoded record carried a label that
// was not a string. Such a field has no trustworthy display text.
func (f Field) MalformedLabel() bool {
	return f.badLabel
}

// DisplayLabel returns the label shown to analysts: the explicit display
// name, then the generic label, then the id.
func (f Field) DisplayLabel() string {
	if s := strings.TrimSpace(f.DisplayName); s != "" {
		return s
	}
	if s := strings.TrimSpace(f.Label); s != "" {
		return s
	}
	return strings.TrimSpace(f.ID)
}

// AllFields flattens the section list in declaration order.
func (t *Template) AllFields() []Field {
	if t == nil {
		return nil
	}
	var fields []Field
	for _, s := range t.Sections {
		fields = append(fields, s.Fields...)
	}
	return fields
}

// GetField returns a pointer to the field with the given id, or nil.
func (t *Template) GetField(id string) *Field {
	if t == nil {
		return nil
	}
	for i := range t.Sections {
		for j := range t.Sections[i].Fields {
			if t.Sections[i].Fields[j].ID == id {
				return &t.Sections[i].Fields[j]
			}
		}
	}
	return nil
}

// HasField returns true if the template declares a field with the given id.
func (t *Template) HasField(id string) bool {
	return t.GetField(id) != nil
}

// FieldIDs returns all non-empty field ids.
func (t *Template) FieldIDs() []string {
	var ids []string
	for _, f := range t.AllFields() {
		if f.ID != "" {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
