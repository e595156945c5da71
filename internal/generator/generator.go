// Package generator derives executable test suites from an analyzed page
// model. Generation is deterministic: the rule tables are fixed and ordered,
// elements are visited in model order, and no step depends on wall-clock or
// randomness, so identical models produce byte-identical suites.
package generator

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"smarttest/internal/analyzer"
)

// Payloads and boundary values used by the negative and edge-case rules.
const (
	sqlInjectionPayload = `admin' OR '1'='1`
	xssPayload          = `<script>alert("XSS")</script>`
	longInputLength     = 256
	maxLengthProbe      = 1024
	specialCharsProbe   = `!@#$%^&*()_+-=[]{};':",./<>?~` + "`"
)

// Credentials optionally supplied by the caller; login-flow cases are only
// generated when they are present.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// Generator builds suites from page models.
type Generator struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Generator {
	return &Generator{log: log}
}

// Generate runs every category's rule table over the model. creds may be
// nil; workflow and credential-dependent cases are skipped without it.
func (g *Generator) Generate(model *analyzer.PageModel, creds *Credentials) Suite {
	b := &suiteBuilder{
		model: model,
		creds: creds,
		ids:   newIDAllocator(),
		suite: make(Suite, len(Categories())),
	}

	b.generatePositive()
	b.generateNegative()
	b.generateUI()
	b.generateFunctional()
	b.generateWorkflow()
	b.generateEdgeCases()

	g.log.Info("test suite generated",
		zap.String("url", model.URL),
		zap.Int("total", b.suite.Total()),
		zap.Int("positive", len(b.suite[CategoryPositive])),
		zap.Int("negative", len(b.suite[CategoryNegative])),
		zap.Int("ui", len(b.suite[CategoryUI])),
		zap.Int("functional", len(b.suite[CategoryFunctional])),
		zap.Int("workflow", len(b.suite[CategoryWorkflow])),
		zap.Int("edge_case", len(b.suite[CategoryEdgeCase])))
	return b.suite
}

type suiteBuilder struct {
	model *analyzer.PageModel
	creds *Credentials
	ids   *idAllocator
	suite Suite
}

func (b *suiteBuilder) add(cat Category, subtype string, el string, tc TestCase) {
	tc.ID = b.ids.next(cat, subtype, el)
	tc.Category = cat
	tc.ElementKey = el
	tc.Priority = priorityFor(tc.Risk, tc.Priority)
	b.suite[cat] = append(b.suite[cat], tc)
}

func (b *suiteBuilder) open() Step {
	return Step{Action: "navigate", Value: b.model.URL}
}

// fillable reports whether an input takes typed text and is worth driving.
func fillable(e *analyzer.PageElement) bool {
	return e.TextLike() && !e.Hidden()
}

func validValueFor(e *analyzer.PageElement) string {
	switch e.Attrs.Type {
	case "email":
		return "qa.user@example.com"
	case "tel":
		return "9876543210"
	case "url":
		return "https://example.com"
	}
	return "Automated test value"
}

func (b *suiteBuilder) generatePositive() {
	if b.creds != nil {
		if user, pass, submit := b.model.LoginFields(); user != nil && pass != nil && submit != nil {
			b.add(CategoryPositive, "LOGIN", user.Key, TestCase{
				Name:        "Login with valid credentials",
				Description: "Sign in using the supplied credentials and verify the page changes",
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: user.Key, Value: b.creds.Username},
					{Action: "fill", Target: pass.Key, Value: b.creds.Password},
					{Action: "click", Target: submit.Key},
					{Action: "verify_navigation"},
				},
				ExpectedResult: "User is authenticated and leaves the login page",
				Priority:       PriorityHigh,
			})
		}
	}
	for i := range b.model.Elements {
		e := &b.model.Elements[i]
		switch {
		case e.Role == analyzer.RoleInput && fillable(e):
			v := validValueFor(e)
			b.add(CategoryPositive, "INPUT", e.Key, TestCase{
				Name:        fmt.Sprintf("Enter valid data in %s", e.DisplayName()),
				Description: "Field accepts well-formed input without client-side errors",
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: v},
					{Action: "verify_value", Target: e.Key, Value: v},
				},
				ExpectedResult: "Value is accepted and retained by the field",
				Priority:       PriorityMedium,
			})
		case e.Role == analyzer.RoleDropdown:
			b.add(CategoryPositive, "SELECT", e.Key, TestCase{
				Name:        fmt.Sprintf("Select an option in %s", e.DisplayName()),
				Description: "Dropdown accepts a selection",
				Steps: []Step{
					b.open(),
					{Action: "select_first", Target: e.Key},
				},
				ExpectedResult: "An option can be selected without errors",
				Priority:       PriorityMedium,
			})
		}
	}
}

func (b *suiteBuilder) generateNegative() {
	for i := range b.model.Elements {
		e := &b.model.Elements[i]
		if e.Role != analyzer.RoleInput || e.Hidden() {
			continue
		}
		if e.Attrs.Required {
			b.add(CategoryNegative, "EMPTY", e.Key, TestCase{
				Name:        fmt.Sprintf("Submit with %s left empty", e.DisplayName()),
				Description: "Required field left blank must be rejected",
				Risk:        RiskEmptyField,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: ""},
					{Action: "verify_value", Target: e.Key, Value: ""},
				},
				ExpectedResult: "A required-field validation message appears; the form does not submit",
			})
		}
		if fillable(e) {
			b.add(CategoryNegative, "BOUNDARY", e.Key, TestCase{
				Name:        fmt.Sprintf("Overlong input in %s", e.DisplayName()),
				Description: fmt.Sprintf("Field receives %d characters", longInputLength),
				Risk:        RiskBoundary,
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: strings.Repeat("A", longInputLength)},
				},
				ExpectedResult: "Input is truncated or rejected gracefully, no script error",
			})
		}
		if fillable(e) || e.Attrs.Type == "password" {
			b.add(CategoryNegative, "SQLI", e.Key, TestCase{
				Name:        fmt.Sprintf("SQL injection probe in %s", e.DisplayName()),
				Description: "Classic tautology payload must not alter application behaviour",
				Risk:        RiskSQLInjection,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: sqlInjectionPayload},
				},
				ExpectedResult: "Payload is treated as literal text; no SQL error or bypass",
			})
			b.add(CategoryNegative, "XSS", e.Key, TestCase{
				Name:        fmt.Sprintf("XSS probe in %s", e.DisplayName()),
				Description: "Script tag payload must be escaped on output",
				Risk:        RiskXSS,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: xssPayload},
				},
				ExpectedResult: "Payload is rendered inert; no dialog fires",
			})
		}
	}
	if b.creds != nil {
		if user, pass, submit := b.model.LoginFields(); user != nil && pass != nil && submit != nil {
			b.add(CategoryNegative, "CREDENTIALS", user.Key, TestCase{
				Name:        "Login with wrong password",
				Description: "Valid username with an incorrect password must be rejected",
				Risk:        RiskInvalidCredentials,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: user.Key, Value: b.creds.Username},
					{Action: "fill", Target: pass.Key, Value: "wrong-password-123"},
					{Action: "click", Target: submit.Key},
				},
				ExpectedResult: "Authentication fails with an error message; user stays on the login page",
			})
		}
	}
}

func (b *suiteBuilder) generateUI() {
	for i := range b.model.Elements {
		e := &b.model.Elements[i]
		switch e.Role {
		case analyzer.RoleInput:
			if e.Hidden() {
				continue
			}
			b.add(CategoryUI, "INPUT", e.Key, TestCase{
				Name:        fmt.Sprintf("%s is visible and enabled", e.DisplayName()),
				Description: "Field renders, accepts focus and is not disabled",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "verify_visible", Target: e.Key},
				},
				ExpectedResult: "Element is visible and interactable",
			})
		case analyzer.RoleButton:
			b.add(CategoryUI, "BUTTON", e.Key, TestCase{
				Name:        fmt.Sprintf("Button %s renders correctly", e.DisplayName()),
				Description: "Button is visible, enabled and labelled",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "verify_visible", Target: e.Key},
				},
				ExpectedResult: "Button is visible and clickable",
			})
		case analyzer.RoleDropdown:
			b.add(CategoryUI, "DROPDOWN", e.Key, TestCase{
				Name:        fmt.Sprintf("Dropdown %s renders with options", e.DisplayName()),
				Description: "Select control is visible and populated",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "verify_visible", Target: e.Key},
				},
				ExpectedResult: "Dropdown is visible and offers options",
			})
		}
	}
	b.add(CategoryUI, "PAGE", "title", TestCase{
		Name:        "Page has a meaningful title",
		Description: "Document title is present and non-empty",
		Risk:        RiskCosmetic,
		Steps: []Step{
			b.open(),
			{Action: "verify_title"},
		},
		ExpectedResult: "Title is set",
	})
	b.add(CategoryUI, "RESPONSIVE", "page", TestCase{
		Name:        "Layout survives viewport changes",
		Description: "Page remains usable at common viewport widths",
		Priority:    PriorityMedium,
		Steps: []Step{
			b.open(),
			{Action: "verify_responsive"},
		},
		ExpectedResult: "No horizontal overflow or collapsed layout at any probed width",
	})
}

func (b *suiteBuilder) generateFunctional() {
	for i := range b.model.Elements {
		e := &b.model.Elements[i]
		switch e.Role {
		case analyzer.RoleLink:
			b.add(CategoryFunctional, "NAV", e.Key, TestCase{
				Name:        fmt.Sprintf("Link %s navigates", e.DisplayName()),
				Description: "Following the link loads its target",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "click", Target: e.Key},
					{Action: "verify_navigation"},
				},
				ExpectedResult: "Browser navigates to the link target",
			})
		case analyzer.RoleButton:
			b.add(CategoryFunctional, "CLICK", e.Key, TestCase{
				Name:        fmt.Sprintf("Button %s responds to click", e.DisplayName()),
				Description: "Clicking triggers the bound action without script errors",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "click", Target: e.Key},
				},
				ExpectedResult: "Click is handled; no console errors",
			})
		case analyzer.RoleForm:
			b.add(CategoryFunctional, "FORM", e.Key, TestCase{
				Name:        fmt.Sprintf("Form %s submits", e.DisplayName()),
				Description: "Form submission round-trips",
				Priority:    PriorityHigh,
				Steps: []Step{
					b.open(),
					{Action: "submit", Target: e.Key},
				},
				ExpectedResult: "Submission is processed; a response page or validation state appears",
			})
		case analyzer.RoleInput:
			if !fillable(e) {
				continue
			}
			v := validValueFor(e)
			b.add(CategoryFunctional, "INPUT", e.Key, TestCase{
				Name:        fmt.Sprintf("%s stores typed text", e.DisplayName()),
				Description: "Typed value is reflected by the control",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: v},
					{Action: "verify_value", Target: e.Key, Value: v},
				},
				ExpectedResult: "Control holds the entered value",
			})
		case analyzer.RoleDropdown:
			b.add(CategoryFunctional, "SELECT", e.Key, TestCase{
				Name:        fmt.Sprintf("Dropdown %s changes selection", e.DisplayName()),
				Description: "Changing the selection fires the control's change handling",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "select_first", Target: e.Key},
				},
				ExpectedResult: "Selection changes without errors",
			})
		}
	}
	b.add(CategoryFunctional, "PERF", "page", TestCase{
		Name:        "Page loads within budget",
		Description: "Initial load completes inside the configured threshold",
		Priority:    PriorityMedium,
		Steps: []Step{
			b.open(),
			{Action: "verify_load_time"},
		},
		ExpectedResult: "Page reaches a stable state within the load-time budget",
	})
}

func (b *suiteBuilder) generateWorkflow() {
	if b.creds != nil {
		if user, pass, submit := b.model.LoginFields(); user != nil && pass != nil && submit != nil {
			steps := []Step{
				b.open(),
				{Action: "fill", Target: user.Key, Value: b.creds.Username},
				{Action: "fill", Target: pass.Key, Value: b.creds.Password},
			}
			if otp := b.model.OTPField(); otp != nil && b.creds.OTP != "" {
				steps = append(steps, Step{Action: "fill", Target: otp.Key, Value: b.creds.OTP})
			}
			steps = append(steps,
				Step{Action: "click", Target: submit.Key},
				Step{Action: "verify_navigation"},
			)
			b.add(CategoryWorkflow, "LOGIN", user.Key, TestCase{
				Name:           "Complete login workflow",
				Description:    "Full authentication flow from credentials to landing page",
				Steps:          steps,
				ExpectedResult: "User lands on the post-login page",
				Priority:       PriorityHigh,
			})
		}
	}
	forms := b.model.ByRole(analyzer.RoleForm)
	if len(forms) > 3 {
		forms = forms[:3]
	}
	for _, f := range forms {
		b.add(CategoryWorkflow, "FORM", f.Key, TestCase{
			Name:        fmt.Sprintf("Fill and submit %s", f.DisplayName()),
			Description: "Populate every fillable field, then submit",
			Priority:    PriorityHigh,
			Steps: []Step{
				b.open(),
				{Action: "fill_form", Target: f.Key},
				{Action: "submit", Target: f.Key},
			},
			ExpectedResult: "Form accepts the populated values and submits",
		})
	}
	for _, key := range b.moduleEntryPoints(3) {
		el, _ := b.model.Element(key)
		b.add(CategoryWorkflow, "MODULE", key, TestCase{
			Name:        fmt.Sprintf("Open module via %s", el.DisplayName()),
			Description: "Navigate into a detected application module and back",
			Priority:    PriorityHigh,
			Steps: []Step{
				b.open(),
				{Action: "click", Target: key},
				{Action: "verify_navigation"},
			},
			ExpectedResult: "Module page loads",
		})
	}
}

// moduleEntryPoints picks the first link per detected module tag, capped.
func (b *suiteBuilder) moduleEntryPoints(max int) []string {
	seen := map[string]bool{}
	var keys []string
	for i := range b.model.Elements {
		e := &b.model.Elements[i]
		if e.Role != analyzer.RoleLink || len(keys) >= max {
			continue
		}
		for _, t := range e.Tags {
			if strings.HasPrefix(t.Name, "module_") && !seen[t.Name] {
				seen[t.Name] = true
				keys = append(keys, e.Key)
				break
			}
		}
	}
	return keys
}

func (b *suiteBuilder) generateEdgeCases() {
	textSeen := 0
	var firstButton string
	for i := range b.model.Elements {
		e := &b.model.Elements[i]
		switch {
		case e.Role == analyzer.RoleInput && fillable(e) && textSeen < 10:
			textSeen++
			b.add(CategoryEdgeCase, "MAXLEN", e.Key, TestCase{
				Name:        fmt.Sprintf("Maximum-length input in %s", e.DisplayName()),
				Description: fmt.Sprintf("Field receives %d characters", maxLengthProbe),
				Priority:    PriorityMedium,
				Risk:        RiskBoundary,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: strings.Repeat("Z", maxLengthProbe)},
				},
				ExpectedResult: "Field enforces its length limit without breaking the page",
			})
			b.add(CategoryEdgeCase, "SPECIALCHARS", e.Key, TestCase{
				Name:        fmt.Sprintf("Special characters in %s", e.DisplayName()),
				Description: "Punctuation-heavy input must not break rendering or submission",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "fill", Target: e.Key, Value: specialCharsProbe},
				},
				ExpectedResult: "Characters are accepted or rejected cleanly",
			})
		case e.Role == analyzer.RoleButton && firstButton == "":
			firstButton = e.Key
		case e.Role == analyzer.RoleTable:
			b.add(CategoryEdgeCase, "EMPTYTABLE", e.Key, TestCase{
				Name:        fmt.Sprintf("Empty result set in %s", e.DisplayName()),
				Description: "Table filtered down to zero rows must render an empty state",
				Priority:    PriorityMedium,
				Steps: []Step{
					b.open(),
					{Action: "verify_visible", Target: e.Key},
				},
				ExpectedResult: "An empty-state message renders instead of a broken table",
			})
			if e.Table != nil && e.Table.HasPagination {
				b.add(CategoryEdgeCase, "PAGINATION", e.Key, TestCase{
					Name:        fmt.Sprintf("Last page of %s", e.DisplayName()),
					Description: "Paginating past the final page must clamp",
					Priority:    PriorityMedium,
					Steps: []Step{
						b.open(),
						{Action: "verify_visible", Target: e.Key},
					},
					ExpectedResult: "Pagination clamps at the final page",
				})
			}
		}
	}
	if firstButton != "" {
		b.add(CategoryEdgeCase, "RAPIDCLICK", firstButton, TestCase{
			Name:        "Rapid repeated clicks",
			Description: "Double and triple clicks must not double-submit",
			Priority:    PriorityMedium,
			Steps: []Step{
				b.open(),
				{Action: "click", Target: firstButton},
				{Action: "click", Target: firstButton},
				{Action: "click", Target: firstButton},
			},
			ExpectedResult: "The action fires once or is idempotent",
		})
	}
}
