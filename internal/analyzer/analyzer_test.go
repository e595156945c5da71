package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smarttest/internal/browser"
	"smarttest/internal/browser/browsertest"
)

// loginPage models a typical ERP login screen: visible user/password fields,
// a few hidden form-state inputs, two buttons, two links, two forms and an
// accounting-year dropdown.
func loginPage() *browsertest.FakePage {
	page := browsertest.NewFakePage()
	page.PageTitle = "School ERP - Login"
	page.PageURL = "https://erp.example.edu/login"

	input := func(ref, id, typ string, required, visible bool) *browsertest.FakeNode {
		attrs := map[string]string{"id": id, "name": id, "type": typ}
		if required {
			attrs["required"] = ""
		}
		return &browsertest.FakeNode{
			Ref: ref, Tag: "input", Selectors: []string{"input"},
			Attributes: attrs, Visible: visible, Enabled: true,
			Box: browser.Rect{X: 100, Y: 100, Width: 200, Height: 30},
		}
	}

	page.Nodes = []*browsertest.FakeNode{
		input("/html/body/form[1]/input[1]", "txtUserId", "text", true, true),
		input("/html/body/form[1]/input[2]", "txtPassword", "password", true, true),
		input("/html/body/form[1]/input[3]", "__VIEWSTATE", "hidden", false, false),
		input("/html/body/form[1]/input[4]", "__EVENTVALIDATION", "hidden", false, false),
		input("/html/body/form[1]/input[5]", "__EVENTTARGET", "hidden", false, false),
		{
			Ref: "/html/body/form[1]/button[1]", Tag: "button",
			Selectors:  []string{"button"},
			Attributes: map[string]string{"id": "btnLogin", "type": "submit"},
			Text:       "Login", Visible: true, Enabled: true,
			Box: browser.Rect{X: 100, Y: 180, Width: 120, Height: 36},
		},
		{
			Ref: "/html/body/div[1]/button[1]", Tag: "button",
			Selectors: []string{"button"},
			Text:      "", Visible: true, Enabled: true,
			Box: browser.Rect{X: 400, Y: 180, Width: 40, Height: 36},
		},
		{
			Ref: "/html/body/div[2]/a[1]", Tag: "a",
			Selectors:  []string{"a"},
			Attributes: map[string]string{"href": "/forgot-password"},
			Text:       "Forgot Password", Visible: true, Enabled: true,
		},
		{
			Ref: "/html/body/div[2]/a[2]", Tag: "a",
			Selectors:  []string{"a"},
			Attributes: map[string]string{"href": "/help"},
			Text:       "Help", Visible: true, Enabled: true,
		},
		{
			Ref: "/html/body/form[1]", Tag: "form",
			Selectors:  []string{"form"},
			Attributes: map[string]string{"id": "frmLogin"},
			Visible:    true, Enabled: true,
		},
		{
			Ref: "/html/body/form[2]", Tag: "form",
			Selectors:  []string{"form"},
			Attributes: map[string]string{"id": "frmLanguage"},
			Visible:    true, Enabled: true,
		},
		{
			Ref: "/html/body/form[2]/select[1]", Tag: "select",
			Selectors:  []string{"select"},
			Attributes: map[string]string{"id": "fy", "name": "fy"},
			Visible:    true, Enabled: true,
			Box: browser.Rect{X: 500, Y: 40, Width: 120, Height: 28},
		},
	}
	return page
}

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(zap.NewNop(), Options{})
	require.NoError(t, err)
	return a
}

func TestAnalyzeLoginPage(t *testing.T) {
	a := newTestAnalyzer(t)
	model, err := a.Analyze(context.Background(), loginPage(), "https://erp.example.edu/login")
	require.NoError(t, err)

	assert.Equal(t, "School ERP - Login", model.Title)
	assert.Equal(t, "https://erp.example.edu/login", model.URL)

	assert.Len(t, model.ByRole(RoleInput), 5)
	assert.Len(t, model.ByRole(RoleButton), 2)
	assert.Len(t, model.ByRole(RoleLink), 2)
	assert.Len(t, model.ByRole(RoleForm), 2)
	assert.Len(t, model.ByRole(RoleDropdown), 1)

	user, ok := model.Element("txtUserId")
	require.True(t, ok)
	assert.True(t, user.Attrs.Required)
	assert.True(t, user.TextLike())
	assert.False(t, user.Hidden())
	_, tagged := user.Tag("username")
	assert.True(t, tagged)

	pass, ok := model.Element("txtPassword")
	require.True(t, ok)
	assert.Equal(t, "password", pass.Attrs.Type)
	assert.False(t, pass.TextLike())

	state, ok := model.Element("__VIEWSTATE")
	require.True(t, ok)
	assert.True(t, state.Hidden())
}

func TestAnalyzeElementKeysAreUnique(t *testing.T) {
	a := newTestAnalyzer(t)
	model, err := a.Analyze(context.Background(), loginPage(), "")
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, e := range model.Elements {
		assert.Falsef(t, seen[e.Key], "duplicate element key %q", e.Key)
		seen[e.Key] = true
		assert.NotEmpty(t, e.Locators, "element %q has no locator candidates", e.Key)
	}

	// The unnamed button gets a positional key.
	_, ok := model.Element("button_2")
	assert.True(t, ok)
}

func TestLoginFieldDetection(t *testing.T) {
	a := newTestAnalyzer(t)
	model, err := a.Analyze(context.Background(), loginPage(), "")
	require.NoError(t, err)

	user, pass, submit := model.LoginFields()
	require.NotNil(t, user)
	require.NotNil(t, pass)
	require.NotNil(t, submit)
	assert.Equal(t, "txtUserId", user.Key)
	assert.Equal(t, "txtPassword", pass.Key)
	assert.Equal(t, "btnLogin", submit.Key)
	assert.Nil(t, model.OTPField())
}

func TestOTPFieldDetection(t *testing.T) {
	page := loginPage()
	page.Nodes = append(page.Nodes, &browsertest.FakeNode{
		Ref: "/html/body/form[1]/input[6]", Tag: "input",
		Selectors:  []string{"input"},
		Attributes: map[string]string{"id": "txtOtp", "name": "txtOtp", "type": "text"},
		Visible:    true, Enabled: true,
	})
	a := newTestAnalyzer(t)
	model, err := a.Analyze(context.Background(), page, "")
	require.NoError(t, err)

	otp := model.OTPField()
	require.NotNil(t, otp)
	assert.Equal(t, "txtOtp", otp.Key)
}

func TestAnalyzeNavigationFailure(t *testing.T) {
	page := browsertest.NewFakePage()
	page.NavigateErr = errors.New("connection refused")
	a := newTestAnalyzer(t)

	_, err := a.Analyze(context.Background(), page, "https://down.example.com")
	var nav *NavigationError
	require.ErrorAs(t, err, &nav)
	assert.Equal(t, "https://down.example.com", nav.URL)
}

func TestAnalyzeUnstablePage(t *testing.T) {
	page := browsertest.NewFakePage()
	page.StableErr = errors.New("still loading")
	a := newTestAnalyzer(t)

	_, err := a.Analyze(context.Background(), page, "https://slow.example.com")
	var nav *NavigationError
	require.ErrorAs(t, err, &nav)
}

func TestAnalyzeEmptyPage(t *testing.T) {
	a := newTestAnalyzer(t)
	model, err := a.Analyze(context.Background(), browsertest.NewFakePage(), "")
	require.NoError(t, err)
	assert.Empty(t, model.Elements)
}

// Hand-built models reach the executor's workers without ever passing through
// Analyze, so the first Element call may come from several goroutines at once.
func TestElementConcurrentLookups(t *testing.T) {
	model := &PageModel{
		Elements: []PageElement{
			{Key: "txtUserId", Role: RoleInput},
			{Key: "btnLogin", Role: RoleButton},
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			el, ok := model.Element("btnLogin")
			if assert.True(t, ok) {
				assert.Equal(t, "btnLogin", el.Key)
			}
			_, ok = model.Element("missing")
			assert.False(t, ok)
		}()
	}
	wg.Wait()
}

func TestAnalyzeTableStructure(t *testing.T) {
	page := browsertest.NewFakePage()
	page.Nodes = []*browsertest.FakeNode{
		{
			Ref: "/html/body/table[1]", Tag: "table",
			Selectors:  []string{"table"},
			Attributes: map[string]string{"id": "tblStudents"},
			Visible:    true, Enabled: true,
		},
	}
	for i, h := range []string{"Admission No", "Student Name", "Class", "Section"} {
		page.Nodes = append(page.Nodes, &browsertest.FakeNode{
			Ref: fmt.Sprintf("/html/body/table[1]/thead/tr/th[%d]", i+1), Tag: "th",
			Selectors: []string{"#tblStudents th"},
			Text:      h, Visible: true, Enabled: true,
		})
	}
	for i := 0; i < 3; i++ {
		page.Nodes = append(page.Nodes, &browsertest.FakeNode{
			Ref: fmt.Sprintf("/html/body/table[1]/tbody/tr[%d]", i+1), Tag: "tr",
			Selectors: []string{"#tblStudents tbody tr"},
			Visible:   true, Enabled: true,
		})
	}
	page.Nodes = append(page.Nodes,
		&browsertest.FakeNode{
			Ref: "/html/body/div[9]", Tag: "div",
			Selectors:  []string{"[class*='pagination']"},
			Attributes: map[string]string{"class": "pagination"},
			Visible:    true, Enabled: true,
		},
		&browsertest.FakeNode{
			Ref: "/html/body/table[1]/tbody/tr[1]/td[5]/a[1]", Tag: "a",
			Selectors: []string{"#tblStudents tbody a, #tblStudents tbody button"},
			Text:      "Edit", Visible: true, Enabled: true,
		},
	)

	a := newTestAnalyzer(t)
	model, err := a.Analyze(context.Background(), page, "")
	require.NoError(t, err)

	tables := model.ByRole(RoleTable)
	require.Len(t, tables, 1)
	info := tables[0].Table
	require.NotNil(t, info)
	assert.Equal(t, "student", info.Kind)
	assert.Equal(t, []string{"Admission No", "Student Name", "Class", "Section"}, info.Headers)
	assert.Equal(t, 3, info.RowCount)
	assert.True(t, info.HasPagination)
	assert.False(t, info.HasExport)
	assert.Equal(t, []string{"Edit"}, info.RowActions)
}

func TestClassifyTableVocabulary(t *testing.T) {
	tests := []struct {
		headers []string
		want    string
	}{
		{[]string{"Admission No", "Student Name", "Class"}, "student"},
		{[]string{"Subject", "Marks", "Grade", "Total"}, "examination"},
		{[]string{"Fee Head", "Amount", "Paid", "Balance"}, "finance"},
		{[]string{"Route", "Bus No", "Driver"}, "transport"},
		{[]string{"Name", "Value"}, "generic"},
		{nil, "generic"},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, classifyTable(tt.headers), "headers %v", tt.headers)
	}
}

func TestClassifyDeterministicAndThresholded(t *testing.T) {
	table, err := LoadRuleTable()
	require.NoError(t, err)
	assert.Equal(t, 1, table.Version)

	attrs := Attributes{Name: "txtUserId", Type: "text"}
	first := table.Classify(attrs)
	second := table.Classify(attrs)
	assert.Equal(t, first, second)
	require.NotEmpty(t, first)
	assert.Equal(t, "username", first[0].Name)
	assert.GreaterOrEqual(t, first[0].Confidence, table.Threshold)

	assert.Empty(t, table.Classify(Attributes{Name: "zzz_opaque_7"}))
}

func TestClassifyModuleLinks(t *testing.T) {
	table, err := LoadRuleTable()
	require.NoError(t, err)

	tags := table.Classify(Attributes{Text: "Student Admission", Href: "/students"})
	require.NotEmpty(t, tags)
	assert.Equal(t, "module_student", tags[0].Name)

	tags = table.Classify(Attributes{Text: "Fee Collection"})
	require.NotEmpty(t, tags)
	assert.Equal(t, "module_finance", tags[0].Name)
}
