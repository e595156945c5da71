package recorder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"smarttest/internal/locator"
)

// DefaultWaitThreshold is the inter-step gap above which synthesis inserts
// an explicit sleep into the generated script.
const DefaultWaitThreshold = 2 * time.Second

// Synthesize renders a recording as a standalone chromedp program. It is a
// pure function of its input: the same steps always produce the same script,
// and synthesizing twice changes nothing.
func Synthesize(url string, steps []RecordedStep) string {
	return SynthesizeWithThreshold(url, steps, DefaultWaitThreshold)
}

// SynthesizeWithThreshold is Synthesize with an explicit wait threshold.
func SynthesizeWithThreshold(url string, steps []RecordedStep, threshold time.Duration) string {
	var b strings.Builder
	b.WriteString("// Generated replay script.\n")
	b.WriteString("package main\n\n")
	b.WriteString("import (\n")
	b.WriteString("\t\"context\"\n")
	b.WriteString("\t\"log\"\n")
	if needsTime(steps, threshold) {
		b.WriteString("\t\"time\"\n")
	}
	b.WriteString("\n\t\"github.com/chromedp/chromedp\"\n")
	b.WriteString(")\n\n")
	b.WriteString("func main() {\n")
	b.WriteString("\tctx, cancel := chromedp.NewContext(context.Background())\n")
	b.WriteString("\tdefer cancel()\n\n")
	b.WriteString("\terr := chromedp.Run(ctx,\n")
	fmt.Fprintf(&b, "\t\tchromedp.Navigate(%s),\n", strconv.Quote(url))
	b.WriteString("\t\tchromedp.WaitReady(\"body\", chromedp.ByQuery),\n")

	for _, step := range steps {
		if threshold > 0 && step.Elapsed > threshold {
			fmt.Fprintf(&b, "\t\tchromedp.Sleep(%d*time.Millisecond),\n", step.Elapsed.Milliseconds())
		}
		sel, by := bestSelector(step.Locators)
		if sel == "" {
			continue
		}
		switch step.Action {
		case "click":
			fmt.Fprintf(&b, "\t\tchromedp.Click(%s, %s),\n", strconv.Quote(sel), by)
		case "type":
			fmt.Fprintf(&b, "\t\tchromedp.SetValue(%s, %s, %s),\n", strconv.Quote(sel), strconv.Quote(step.Value), by)
		case "select":
			fmt.Fprintf(&b, "\t\tchromedp.SetValue(%s, %s, %s),\n", strconv.Quote(sel), strconv.Quote(step.Value), by)
		case "submit":
			fmt.Fprintf(&b, "\t\tchromedp.Submit(%s, %s),\n", strconv.Quote(sel), by)
		case "press_enter":
			fmt.Fprintf(&b, "\t\tchromedp.SendKeys(%s, \"\\r\", %s),\n", strconv.Quote(sel), by)
		}
	}

	b.WriteString("\t)\n")
	b.WriteString("\tif err != nil {\n")
	b.WriteString("\t\tlog.Fatal(err)\n")
	b.WriteString("\t}\n")
	b.WriteString("}\n")
	return b.String()
}

// bestSelector picks the strongest candidate and the matching chromedp
// query option.
func bestSelector(cands []locator.Candidate) (string, string) {
	ranked := locator.Rank(cands)
	if len(ranked) == 0 {
		return "", ""
	}
	c := ranked[0]
	if c.Strategy == locator.StrategyXPath || c.Strategy == locator.StrategyText {
		return c.Selector, "chromedp.BySearch"
	}
	return c.Selector, "chromedp.ByQuery"
}

func needsTime(steps []RecordedStep, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	for _, s := range steps {
		if s.Elapsed > threshold {
			return true
		}
	}
	return false
}
