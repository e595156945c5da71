// Package analyzer reduces a live page to a PageModel: the set of
// interactable elements with ranked locators, semantic tags from a versioned
// keyword table and table structure where present.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"smarttest/internal/browser"
	"smarttest/internal/locator"
)

// NavigationError means the target page could not be reached or never
// settled into a stable, analyzable state.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("analyzer: navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Options bound the scan.
type Options struct {
	StableTimeout time.Duration
	MaxLinks      int
	MaxTables     int
	MaxWidgets    int
}

func (o Options) withDefaults() Options {
	if o.StableTimeout <= 0 {
		o.StableTimeout = 15 * time.Second
	}
	if o.MaxLinks <= 0 {
		o.MaxLinks = 30
	}
	if o.MaxTables <= 0 {
		o.MaxTables = 10
	}
	if o.MaxWidgets <= 0 {
		o.MaxWidgets = 20
	}
	return o
}

// Analyzer scans pages. Safe for concurrent use; each Analyze call works
// against the page it is given.
type Analyzer struct {
	table *RuleTable
	opts  Options
	log   *zap.Logger
}

// New loads the embedded rule table and returns a ready analyzer.
func New(log *zap.Logger, opts Options) (*Analyzer, error) {
	table, err := LoadRuleTable()
	if err != nil {
		return nil, err
	}
	return &Analyzer{table: table, opts: opts.withDefaults(), log: log}, nil
}

// RuleVersion exposes the loaded vocabulary version for reports.
func (a *Analyzer) RuleVersion() int { return a.table.Version }

// Analyze navigates to url (skipped when empty, for already-positioned
// pages), waits for a stable load and builds the model. An empty page is not
// an error; it yields a model with no elements.
func (a *Analyzer) Analyze(ctx context.Context, page browser.Page, url string) (*PageModel, error) {
	start := time.Now()
	if url != "" {
		if err := page.Navigate(ctx, url); err != nil {
			return nil, &NavigationError{URL: url, Err: err}
		}
	}
	if err := page.WaitStable(ctx, a.opts.StableTimeout); err != nil {
		return nil, &NavigationError{URL: url, Err: err}
	}

	model := &PageModel{URL: url}
	if loc, err := page.Location(ctx); err == nil && loc != "" {
		model.URL = loc
	}
	model.Title, _ = page.Title(ctx)

	b := &modelBuilder{model: model, table: a.table, keys: make(map[string]int)}

	if err := a.collectInputs(ctx, page, b); err != nil {
		return nil, err
	}
	if err := a.collectButtons(ctx, page, b); err != nil {
		return nil, err
	}
	if err := a.collectLinks(ctx, page, b); err != nil {
		return nil, err
	}
	if err := a.collectForms(ctx, page, b); err != nil {
		return nil, err
	}
	if err := a.collectDropdowns(ctx, page, b); err != nil {
		return nil, err
	}
	if err := a.collectTables(ctx, page, b); err != nil {
		return nil, err
	}
	if err := a.collectWidgets(ctx, page, b); err != nil {
		return nil, err
	}

	model.LoadTime = time.Since(start)
	model.indexOnce.Do(model.index)
	a.log.Info("page analyzed",
		zap.String("url", model.URL),
		zap.Int("elements", len(model.Elements)),
		zap.Duration("load_time", model.LoadTime))
	return model, nil
}

func (a *Analyzer) collectInputs(ctx context.Context, page browser.Page, b *modelBuilder) error {
	for _, sel := range []string{"input", "textarea"} {
		nodes, err := page.Query(ctx, sel)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			t := strings.ToLower(n.Attr("type"))
			if t == "submit" || t == "button" || t == "image" {
				continue // collected as buttons
			}
			if sel == "textarea" {
				t = "textarea"
			}
			attrs := attrsFrom(n)
			attrs.Type = t
			b.add(RoleInput, attrs, n)
		}
	}
	return nil
}

func (a *Analyzer) collectButtons(ctx context.Context, page browser.Page, b *modelBuilder) error {
	for _, sel := range []string{"button", "input[type='submit']", "input[type='button']", "a[class*='btn']"} {
		nodes, err := page.Query(ctx, sel)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			attrs := attrsFrom(n)
			if attrs.Text == "" {
				attrs.Text = n.Attr("value")
			}
			if attrs.Type == "" {
				attrs.Type = strings.ToLower(n.Attr("type"))
			}
			b.add(RoleButton, attrs, n)
		}
	}
	return nil
}

func (a *Analyzer) collectLinks(ctx context.Context, page browser.Page, b *modelBuilder) error {
	nodes, err := page.Query(ctx, "a")
	if err != nil {
		return err
	}
	count := 0
	for _, n := range nodes {
		if count >= a.opts.MaxLinks {
			break
		}
		if strings.Contains(n.Attr("class"), "btn") {
			continue // collected as buttons
		}
		href := n.Attr("href")
		if href == "" || strings.HasPrefix(href, "javascript:") {
			continue
		}
		b.add(RoleLink, attrsFrom(n), n)
		count++
	}
	return nil
}

func (a *Analyzer) collectForms(ctx context.Context, page browser.Page, b *modelBuilder) error {
	nodes, err := page.Query(ctx, "form")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		b.add(RoleForm, attrsFrom(n), n)
	}
	return nil
}

func (a *Analyzer) collectDropdowns(ctx context.Context, page browser.Page, b *modelBuilder) error {
	nodes, err := page.Query(ctx, "select")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		b.add(RoleDropdown, attrsFrom(n), n)
	}
	return nil
}

func (a *Analyzer) collectTables(ctx context.Context, page browser.Page, b *modelBuilder) error {
	nodes, err := page.Query(ctx, "table")
	if err != nil {
		return err
	}
	if len(nodes) > a.opts.MaxTables {
		nodes = nodes[:a.opts.MaxTables]
	}
	for _, n := range nodes {
		info, err := a.inspectTable(ctx, page, n)
		if err != nil {
			a.log.Warn("table inspection failed", zap.String("ref", n.Ref), zap.Error(err))
			continue
		}
		el := b.add(RoleTable, attrsFrom(n), n)
		el.Table = info
	}
	return nil
}

func (a *Analyzer) inspectTable(ctx context.Context, page browser.Page, n browser.Node) (*TableInfo, error) {
	scope := "table"
	if id := n.Attr("id"); id != "" {
		scope = "#" + id
	}
	info := &TableInfo{}

	headerNodes, err := page.Query(ctx, scope+" th")
	if err != nil {
		return nil, err
	}
	for _, h := range headerNodes {
		if text := strings.TrimSpace(h.Text); text != "" {
			info.Headers = append(info.Headers, text)
		}
	}
	info.Kind = classifyTable(info.Headers)

	rows, err := page.Query(ctx, scope+" tbody tr")
	if err != nil {
		return nil, err
	}
	info.RowCount = len(rows)

	info.HasPagination = a.anyMatch(ctx, page, scope, "[class*='pagination']", "[class*='pager']")
	info.HasSearch = a.anyMatch(ctx, page, scope, "input[type='search']", "[class*='search'] input")
	info.HasFilter = a.anyMatch(ctx, page, scope, "[class*='filter']")
	info.HasExport = a.anyMatch(ctx, page, scope, "[class*='export']", "[class*='download']")

	actionNodes, _ := page.Query(ctx, scope+" tbody a, "+scope+" tbody button")
	seen := map[string]bool{}
	for _, an := range actionNodes {
		label := strings.TrimSpace(an.Text)
		if label == "" || seen[label] || len(info.RowActions) >= 5 {
			continue
		}
		seen[label] = true
		info.RowActions = append(info.RowActions, label)
	}
	return info, nil
}

// anyMatch probes helper selectors near a table, table-scoped first and then
// page-wide (list pages usually keep the toolbar outside the table element).
func (a *Analyzer) anyMatch(ctx context.Context, page browser.Page, scope string, selectors ...string) bool {
	for _, sel := range selectors {
		if nodes, err := page.Query(ctx, scope+" "+sel); err == nil && len(nodes) > 0 {
			return true
		}
		if nodes, err := page.Query(ctx, sel); err == nil && len(nodes) > 0 {
			return true
		}
	}
	return false
}

func (a *Analyzer) collectWidgets(ctx context.Context, page browser.Page, b *modelBuilder) error {
	nodes, err := page.Query(ctx, "[class*='card'], [class*='widget'], [class*='stat']")
	if err != nil {
		return err
	}
	count := 0
	for _, n := range nodes {
		if count >= a.opts.MaxWidgets {
			break
		}
		if len(strings.TrimSpace(n.Text)) < 5 {
			continue
		}
		b.add(RoleWidget, attrsFrom(n), n)
		count++
	}
	return nil
}

func attrsFrom(n browser.Node) Attributes {
	return Attributes{
		ID:          n.Attr("id"),
		Name:        n.Attr("name"),
		Type:        strings.ToLower(n.Attr("type")),
		Placeholder: n.Attr("placeholder"),
		Label:       n.Attr("aria-label"),
		Class:       n.Attr("class"),
		Href:        n.Attr("href"),
		Text:        strings.TrimSpace(n.Text),
		Required:    n.Attr("required") != "" || hasBoolAttr(n, "required"),
		Visible:     n.Visible,
	}
}

// hasBoolAttr treats bare boolean attributes (required, disabled) whose
// value serializes as "" but whose key is present.
func hasBoolAttr(n browser.Node, name string) bool {
	_, ok := n.Attributes[name]
	return ok
}

// modelBuilder assembles elements with unique keys: id, else name, else
// role_n in document order, with a suffix counter on collision.
type modelBuilder struct {
	model *PageModel
	table *RuleTable
	keys  map[string]int
	count map[Role]int
}

func (b *modelBuilder) add(role Role, attrs Attributes, n browser.Node) *PageElement {
	if b.count == nil {
		b.count = make(map[Role]int)
	}
	b.count[role]++

	key := attrs.ID
	if key == "" {
		key = attrs.Name
	}
	if key == "" {
		key = fmt.Sprintf("%s_%d", role, b.count[role])
	}
	if seen := b.keys[key]; seen > 0 {
		b.keys[key] = seen + 1
		key = fmt.Sprintf("%s_%d", key, seen+1)
	}
	b.keys[key] = 1

	el := PageElement{
		Key:      key,
		Role:     role,
		Attrs:    attrs,
		Locators: locator.Build(n),
		Tags:     b.table.Classify(attrs),
	}
	b.model.Elements = append(b.model.Elements, el)
	return &b.model.Elements[len(b.model.Elements)-1]
}
