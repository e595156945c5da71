package generator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smarttest/internal/analyzer"
	"smarttest/internal/locator"
)

// loginModel is a hand-built page model of a typical ERP login screen:
// a required user-id field, a required password field, three hidden state
// inputs, a Login button plus an unlabelled one, two links, two forms and
// an accounting-year dropdown.
func loginModel() *analyzer.PageModel {
	el := func(key string, role analyzer.Role, attrs analyzer.Attributes, tags ...analyzer.SemanticTag) analyzer.PageElement {
		return analyzer.PageElement{
			Key:   key,
			Role:  role,
			Attrs: attrs,
			Locators: []locator.Candidate{
				{Strategy: locator.StrategyID, Selector: "#" + key},
			},
			Tags: tags,
		}
	}
	return &analyzer.PageModel{
		URL:   "https://erp.example.edu/login",
		Title: "School ERP - Login",
		Elements: []analyzer.PageElement{
			el("txtUserId", analyzer.RoleInput,
				analyzer.Attributes{ID: "txtUserId", Name: "txtUserId", Type: "text", Required: true, Visible: true},
				analyzer.SemanticTag{Name: "username", Confidence: 2.0}),
			el("txtPassword", analyzer.RoleInput,
				analyzer.Attributes{ID: "txtPassword", Name: "txtPassword", Type: "password", Required: true, Visible: true},
				analyzer.SemanticTag{Name: "password", Confidence: 2.0}),
			el("__VIEWSTATE", analyzer.RoleInput, analyzer.Attributes{ID: "__VIEWSTATE", Type: "hidden"}),
			el("__EVENTVALIDATION", analyzer.RoleInput, analyzer.Attributes{ID: "__EVENTVALIDATION", Type: "hidden"}),
			el("__EVENTTARGET", analyzer.RoleInput, analyzer.Attributes{ID: "__EVENTTARGET", Type: "hidden"}),
			el("btnLogin", analyzer.RoleButton,
				analyzer.Attributes{ID: "btnLogin", Type: "submit", Text: "Login", Visible: true},
				analyzer.SemanticTag{Name: "submit", Confidence: 1.8}),
			el("button_2", analyzer.RoleButton, analyzer.Attributes{Visible: true}),
			el("link_1", analyzer.RoleLink, analyzer.Attributes{Text: "Forgot Password", Href: "/forgot", Visible: true}),
			el("link_2", analyzer.RoleLink, analyzer.Attributes{Text: "Help", Href: "/help", Visible: true}),
			el("frmLogin", analyzer.RoleForm, analyzer.Attributes{ID: "frmLogin", Visible: true}),
			el("frmLanguage", analyzer.RoleForm, analyzer.Attributes{ID: "frmLanguage", Visible: true}),
			el("fy", analyzer.RoleDropdown, analyzer.Attributes{ID: "fy", Name: "fy", Visible: true}),
		},
	}
}

func TestGenerateLoginPageCounts(t *testing.T) {
	g := New(zap.NewNop())
	suite := g.Generate(loginModel(), nil)

	assert.Len(t, suite[CategoryPositive], 2)
	assert.Len(t, suite[CategoryNegative], 7)
	assert.Len(t, suite[CategoryUI], 7)
	assert.Len(t, suite[CategoryFunctional], 9)
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := New(zap.NewNop())
	first, err := json.Marshal(g.Generate(loginModel(), nil))
	require.NoError(t, err)
	second, err := json.Marshal(g.Generate(loginModel(), nil))
	require.NoError(t, err)
	assert.Equal(t, first, second, "same model must produce byte-identical suites")
}

func TestGenerateIDsUniqueAndWellFormed(t *testing.T) {
	g := New(zap.NewNop())
	suite := g.Generate(loginModel(), &Credentials{Username: "admin", Password: "secret"})

	seen := map[string]bool{}
	for cat, cases := range suite {
		for _, tc := range cases {
			assert.Falsef(t, seen[tc.ID], "duplicate test id %q", tc.ID)
			seen[tc.ID] = true
			assert.Truef(t, strings.HasPrefix(tc.ID, cat.token()+"_"),
				"id %q does not start with its category token", tc.ID)
			assert.Equalf(t, strings.ToUpper(tc.ID), tc.ID, "id %q is not uppercase", tc.ID)
			assert.NotEmpty(t, tc.Steps, "case %q has no steps", tc.ID)
			assert.Equal(t, "navigate", tc.Steps[0].Action, "case %q does not start by navigating", tc.ID)
		}
	}
}

func TestGeneratePriorityLaw(t *testing.T) {
	g := New(zap.NewNop())
	suite := g.Generate(loginModel(), &Credentials{Username: "admin", Password: "secret"})

	for _, tc := range suite.Flatten() {
		if tc.Risk == RiskSQLInjection || tc.Risk == RiskXSS {
			assert.Equalf(t, PriorityCritical, tc.Priority, "case %q", tc.ID)
		} else {
			assert.NotEqualf(t, PriorityCritical, tc.Priority,
				"case %q is Critical without an injection risk", tc.ID)
		}
		if tc.Risk == RiskEmptyField || tc.Risk == RiskInvalidCredentials {
			assert.Equalf(t, PriorityHigh, tc.Priority, "case %q", tc.ID)
		}
	}
}

func TestGenerateSecurityPayloads(t *testing.T) {
	g := New(zap.NewNop())
	suite := g.Generate(loginModel(), nil)

	var sqli, xss int
	for _, tc := range suite[CategoryNegative] {
		switch tc.Risk {
		case RiskSQLInjection:
			sqli++
			require.Len(t, tc.Steps, 2)
			assert.Equal(t, `admin' OR '1'='1`, tc.Steps[1].Value)
		case RiskXSS:
			xss++
			assert.Contains(t, tc.Steps[1].Value, "<script>")
		}
	}
	// Both the text field and the password field get each probe.
	assert.Equal(t, 2, sqli)
	assert.Equal(t, 2, xss)
}

func TestGenerateCredentialGatedCases(t *testing.T) {
	g := New(zap.NewNop())

	without := g.Generate(loginModel(), nil)
	for _, tc := range without.Flatten() {
		assert.NotContainsf(t, tc.ID, "_LOGIN_", "case %q requires credentials that were not supplied", tc.ID)
		assert.NotContains(t, tc.ID, "_CREDENTIALS_")
	}

	with := g.Generate(loginModel(), &Credentials{Username: "admin", Password: "secret"})
	assert.Len(t, with[CategoryPositive], 3)
	assert.Len(t, with[CategoryNegative], 8)

	var loginWorkflow *TestCase
	for i, tc := range with[CategoryWorkflow] {
		if strings.HasPrefix(tc.ID, "WORKFLOW_LOGIN_") {
			loginWorkflow = &with[CategoryWorkflow][i]
		}
	}
	require.NotNil(t, loginWorkflow)
	assert.Equal(t, PriorityHigh, loginWorkflow.Priority)
}

func TestGenerateWorkflowAndEdgeCases(t *testing.T) {
	g := New(zap.NewNop())
	suite := g.Generate(loginModel(), nil)

	// Two forms -> two form workflows; no module links on a login page.
	require.Len(t, suite[CategoryWorkflow], 2)
	for _, tc := range suite[CategoryWorkflow] {
		assert.True(t, strings.HasPrefix(tc.ID, "WORKFLOW_FORM_"))
	}

	// One text field -> max-length + special-chars, plus the rapid-click probe.
	require.Len(t, suite[CategoryEdgeCase], 3)
	assert.Equal(t, "EDGE_CASE_MAXLEN_TXTUSERID", suite[CategoryEdgeCase][0].ID)
	assert.Equal(t, "EDGE_CASE_SPECIALCHARS_TXTUSERID", suite[CategoryEdgeCase][1].ID)
	assert.Equal(t, "EDGE_CASE_RAPIDCLICK_BTNLOGIN", suite[CategoryEdgeCase][2].ID)
}

func TestGenerateModuleWorkflows(t *testing.T) {
	model := loginModel()
	model.Elements = append(model.Elements,
		analyzer.PageElement{
			Key: "lnkStudents", Role: analyzer.RoleLink,
			Attrs: analyzer.Attributes{Text: "Student Admission", Href: "/students", Visible: true},
			Tags:  []analyzer.SemanticTag{{Name: "module_student", Confidence: 1.2}},
		},
		analyzer.PageElement{
			Key: "lnkFees", Role: analyzer.RoleLink,
			Attrs: analyzer.Attributes{Text: "Fee Collection", Href: "/fees", Visible: true},
			Tags:  []analyzer.SemanticTag{{Name: "module_finance", Confidence: 1.2}},
		},
	)
	g := New(zap.NewNop())
	suite := g.Generate(model, nil)

	var modules []string
	for _, tc := range suite[CategoryWorkflow] {
		if strings.HasPrefix(tc.ID, "WORKFLOW_MODULE_") {
			modules = append(modules, tc.ElementKey)
		}
	}
	assert.Equal(t, []string{"lnkStudents", "lnkFees"}, modules)
}

func TestGenerateEmptyModel(t *testing.T) {
	g := New(zap.NewNop())
	suite := g.Generate(&analyzer.PageModel{URL: "https://blank.example.com"}, nil)

	assert.Empty(t, suite[CategoryPositive])
	assert.Empty(t, suite[CategoryNegative])
	// Page-level checks exist even on an empty page: title + responsive for
	// UI, the load-time check for functional.
	assert.Len(t, suite[CategoryUI], 2)
	require.Len(t, suite[CategoryFunctional], 1)
	assert.Equal(t, "FUNCTIONAL_PERF_PAGE", suite[CategoryFunctional][0].ID)
}

func TestIDCollisionSuffix(t *testing.T) {
	ids := newIDAllocator()
	first := ids.next(CategoryNegative, "SQLI", "txtUserId")
	second := ids.next(CategoryNegative, "SQLI", "txtUserId")
	third := ids.next(CategoryNegative, "SQLI", "txtUserId")
	assert.Equal(t, "NEGATIVE_SQLI_TXTUSERID", first)
	assert.Equal(t, "NEGATIVE_SQLI_TXTUSERID_2", second)
	assert.Equal(t, "NEGATIVE_SQLI_TXTUSERID_3", third)
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct{ in, want string }{
		{"txtUserId", "TXTUSERID"},
		{"user name.field-1", "USER_NAME_FIELD_1"},
		{"ünïcode!", "NCODE"},
		{"", "X"},
		{strings.Repeat("a", 64), strings.Repeat("A", 30)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeIdentifier(tt.in))
	}
}

func TestSuiteFlattenOrder(t *testing.T) {
	g := New(zap.NewNop())
	suite := g.Generate(loginModel(), nil)

	flat := suite.Flatten()
	require.Equal(t, suite.Total(), len(flat))
	lastRank := -1
	rank := map[Category]int{}
	for i, c := range Categories() {
		rank[c] = i
	}
	for _, tc := range flat {
		require.GreaterOrEqual(t, rank[tc.Category], lastRank)
		lastRank = rank[tc.Category]
	}
}
