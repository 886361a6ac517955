package badge

import (
	"strings"
	"testing"
)

func TestRender_Passing(t *testing.T) {
	svg, ok := Render("passing")
	if !ok {
		t.Fatalf("expected a badge for passing")
	}
	if !strings.Contains(svg, ColorPassing) {
		t.Errorf("passing badge missing %s", ColorPassing)
	}
	if !strings.Contains(svg, ">drovah<") || !strings.Contains(svg, ">passing<") {
		t.Errorf("badge text missing: %s", svg)
	}
	if !strings.HasPrefix(svg, "<svg") {
		t.Errorf("expected an svg document")
	}
}

func TestRender_Failing(t *testing.T) {
	svg, ok := Render("failing")
	if !ok {
		t.Fatalf("expected a badge for failing")
	}
	if !strings.Contains(svg, ColorFailing) {
		t.Errorf("failing badge missing %s", ColorFailing)
	}
}

func TestRender_Unknown(t *testing.T) {
	for _, status := range []string{"unknown", "", "Passing", "queued"} {
		if svg, ok := Render(status); ok || svg != "" {
			t.Errorf("%q: expected no badge, got %q", status, svg)
		}
	}
}

func TestRenderOptions_WidthFollowsText(t *testing.T) {
	short := RenderOptions(Options{Subject: "a", Status: "b", Color: "#000"})
	long := RenderOptions(Options{Subject: "a", Status: "a much longer status", Color: "#000"})
	if !strings.Contains(short, `width="34"`) {
		t.Errorf("expected width 34 for two single-character labels: %s", short)
	}
	if strings.Contains(long, `width="34"`) {
		t.Errorf("long status should widen the badge")
	}
}
