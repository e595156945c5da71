package analyzer

import (
	"strings"
	"sync"
	"time"

	"smarttest/internal/locator"
)

// Role is the interaction role of a page element.
type Role string

const (
	RoleInput    Role = "input"
	RoleButton   Role = "button"
	RoleLink     Role = "link"
	RoleForm     Role = "form"
	RoleDropdown Role = "dropdown"
	RoleTable    Role = "table"
	RoleWidget   Role = "widget"
)

// SemanticTag is a domain meaning attached to an element by the
// classification rule table, with the score it cleared the threshold by.
type SemanticTag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Attributes are the classification-relevant facts about an element.
type Attributes struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Label       string `json:"label,omitempty"`
	Class       string `json:"class,omitempty"`
	Href        string `json:"href,omitempty"`
	Text        string `json:"text,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Visible     bool   `json:"visible"`
}

// TableInfo describes a detected data table.
type TableInfo struct {
	Kind          string   `json:"kind"`
	Headers       []string `json:"headers"`
	RowCount      int      `json:"row_count"`
	HasPagination bool     `json:"has_pagination"`
	HasSearch     bool     `json:"has_search"`
	HasFilter     bool     `json:"has_filter"`
	HasExport     bool     `json:"has_export"`
	RowActions    []string `json:"row_actions,omitempty"`
}

// PageElement is one interactable element of the analyzed page.
type PageElement struct {
	Key      string              `json:"key"`
	Role     Role                `json:"role"`
	Attrs    Attributes          `json:"attributes"`
	Locators []locator.Candidate `json:"locators"`
	Tags     []SemanticTag       `json:"tags,omitempty"`
	Table    *TableInfo          `json:"table,omitempty"`
}

// Tag returns the confidence for a semantic tag, or false when absent.
func (e *PageElement) Tag(name string) (float64, bool) {
	for _, t := range e.Tags {
		if t.Name == name {
			return t.Confidence, true
		}
	}
	return 0, false
}

// PageModel is the analyzer's output: the page reduced to addressable,
// classified elements. Element keys are unique within a model.
type PageModel struct {
	URL      string        `json:"url"`
	Title    string        `json:"title"`
	LoadTime time.Duration `json:"load_time"`
	Elements []PageElement `json:"elements"`

	indexOnce sync.Once
	byKey     map[string]int
}

// Element looks an element up by key. Safe for concurrent use; the executor's
// workers all resolve against one shared model.
func (m *PageModel) Element(key string) (*PageElement, bool) {
	m.indexOnce.Do(m.index)
	i, ok := m.byKey[key]
	if !ok {
		return nil, false
	}
	return &m.Elements[i], true
}

func (m *PageModel) index() {
	m.byKey = make(map[string]int, len(m.Elements))
	for i := range m.Elements {
		m.byKey[m.Elements[i].Key] = i
	}
}

// ByRole returns the elements of one role in document order.
func (m *PageModel) ByRole(role Role) []PageElement {
	var out []PageElement
	for _, e := range m.Elements {
		if e.Role == role {
			out = append(out, e)
		}
	}
	return out
}

// LoginFields finds the credential-shaped trio on the page: a username-like
// input, a password input and a submit control. Any of the three may be nil.
func (m *PageModel) LoginFields() (user, pass, submit *PageElement) {
	for i := range m.Elements {
		e := &m.Elements[i]
		switch e.Role {
		case RoleInput:
			if e.Attrs.Type == "password" {
				if pass == nil {
					pass = e
				}
				continue
			}
			if user == nil {
				if _, ok := e.Tag("username"); ok {
					user = e
				}
			}
		case RoleButton:
			if submit == nil {
				if _, ok := e.Tag("submit"); ok {
					submit = e
				} else if e.Attrs.Type == "submit" {
					submit = e
				}
			}
		}
	}
	return user, pass, submit
}

// OTPField finds a one-time-passcode input if the page carries one.
func (m *PageModel) OTPField() *PageElement {
	for i := range m.Elements {
		e := &m.Elements[i]
		if e.Role != RoleInput {
			continue
		}
		if _, ok := e.Tag("otp"); ok {
			return e
		}
	}
	return nil
}

// TextLike reports whether an input element accepts free text.
func (e *PageElement) TextLike() bool {
	if e.Role != RoleInput {
		return false
	}
	switch e.Attrs.Type {
	case "", "text", "email", "search", "url", "tel", "textarea":
		return true
	}
	return false
}

// Hidden reports whether the element is an invisible form input.
func (e *PageElement) Hidden() bool {
	return e.Role == RoleInput && (e.Attrs.Type == "hidden" || !e.Attrs.Visible)
}

// DisplayName is a short human label for reports.
func (e *PageElement) DisplayName() string {
	for _, v := range []string{e.Attrs.Label, e.Attrs.Placeholder, e.Attrs.Text, e.Attrs.Name, e.Attrs.ID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return e.Key
}
