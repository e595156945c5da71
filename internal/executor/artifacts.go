package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"smarttest/internal/browser"
)

// captureArtifacts collects failure evidence from the session: screenshot,
// console tail, DOM snapshot and network trace. Everything is best-effort;
// missing pieces are logged and dropped, never failed on.
func (e *Engine) captureArtifacts(session browser.Session, testID string) *Artifacts {
	if e.cfg.ArtifactDir == "" {
		return nil
	}
	dir := filepath.Join(e.cfg.ArtifactDir, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.log.Warn("artifact dir unavailable", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	base := fmt.Sprintf("%s_%d", sanitizeFilename(testID), time.Now().UnixMilli())
	a := &Artifacts{}

	if png, err := session.Screenshot(ctx); err == nil {
		p := filepath.Join(dir, base+".png")
		if os.WriteFile(p, png, 0o644) == nil {
			a.Screenshot = p
		}
	} else {
		e.log.Warn("screenshot capture failed", zap.String("test_id", testID), zap.Error(err))
	}

	if entries := session.ConsoleTail(200); len(entries) > 0 {
		var b strings.Builder
		for _, c := range entries {
			fmt.Fprintf(&b, "%s [%s] %s\n", c.At.Format(time.RFC3339), c.Level, c.Text)
		}
		p := filepath.Join(dir, base+".console.log")
		if os.WriteFile(p, []byte(b.String()), 0o644) == nil {
			a.ConsoleLog = p
		}
	}

	if html, err := session.HTML(ctx); err == nil {
		p := filepath.Join(dir, base+".dom.html")
		if os.WriteFile(p, []byte(html), 0o644) == nil {
			a.DOMSnapshot = p
		}
	}

	if entries := session.NetworkTail(200); len(entries) > 0 {
		if raw, err := json.MarshalIndent(entries, "", "  "); err == nil {
			p := filepath.Join(dir, base+".network.json")
			if os.WriteFile(p, raw, 0o644) == nil {
				a.NetworkTrace = p
			}
		}
	}

	if *a == (Artifacts{}) {
		return nil
	}
	return a
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}
