package promptbuild

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/sections"
)

// catalogForTest returns a catalog whose text for each key is "<KEY>",
// with overrides applied.
func catalogForTest(t *testing.T, overrides map[string]string) *sections.Catalog {
	t.Helper()
	texts := make(map[string]string, len(sections.RequiredKeys))
	for _, key := range sections.RequiredKeys {
		texts[key] = strings.ToUpper(key)
	}
	for k, v := range overrides {
		texts[k] = v
	}
	cat, err := sections.New(texts)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return cat
}

func joined(parts ...string) string {
	return strings.Join(parts, "\n\n")
}

func TestBuildStageSelection(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))

	tests := []struct {
		stage Stage
		want  string
	}{
		{StageStartup, joined("CORE_IDENTITY", "LANGUAGE_RULES", "STARTUP_INSTRUCTIONS", "CONVERSATION_FLOW", "TONE_STYLE", "TOOL_USAGE")},
		{StageMidConversation, joined("CORE_IDENTITY", "LANGUAGE_RULES", "MID_CONVERSATION", "TONE_STYLE", "TOOL_USAGE")},
		{StageActive, joined("CORE_IDENTITY", "LANGUAGE_RULES", "MID_CONVERSATION", "TONE_STYLE", "TOOL_USAGE")},
		{StageClosing, joined("CORE_IDENTITY", "LANGUAGE_RULES", "CLOSING", "TONE_STYLE")},
		{Stage("unknown_stage"), joined("CORE_IDENTITY", "LANGUAGE_RULES")},
		{Stage(""), joined("CORE_IDENTITY", "LANGUAGE_RULES")},
	}

	for _, tc := range tests {
		t.Run(string(tc.stage), func(t *testing.T) {
			got := b.Build(Request{Stage: tc.stage})
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("stage %q mismatch (-want +got):\n%s", tc.stage, diff)
			}
		})
	}
}

func TestBuildClosingHasFourBlocks(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	out := b.Build(Request{Stage: StageClosing})
	if n := len(strings.Split(out, "\n\n")); n != 4 {
		t.Fatalf("expected 4 blocks, got %d: %q", n, out)
	}
}

func TestBuildIncludeReplacesSelection(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))

	out := b.Build(Request{Stage: StageStartup, Include: []string{"faq_info", "tone_style"}})
	if out != joined("FAQ_INFO", "TONE_STYLE") {
		t.Fatalf("expected include list verbatim, got %q", out)
	}

	out = b.Build(Request{Stage: StageClosing, Include: []string{"tone_style", "core_identity"}})
	if out != joined("TONE_STYLE", "CORE_IDENTITY") {
		t.Fatalf("expected include order preserved, got %q", out)
	}
}

func TestBuildEmptyIncludeSelectsNothing(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))

	if out := b.Build(Request{Stage: StageStartup, Include: []string{}}); out != "" {
		t.Fatalf("expected empty prompt, got %q", out)
	}

	out := b.Build(Request{
		Stage:      StageStartup,
		Include:    []string{},
		Guardrails: "GUARD",
		DateTime:   &DateTimeInfo{CurrentDate: "2026-10-17"},
	})
	if !strings.HasPrefix(out, "## CURRENT DATE AND TIME INFORMATION") {
		t.Fatalf("expected datetime block first, got %q", out)
	}
	if !strings.HasSuffix(out, "\n\nGUARD") {
		t.Fatalf("expected guardrails last, got %q", out)
	}
	if strings.Contains(out, "CORE_IDENTITY") {
		t.Fatalf("always-included sections must not be re-added: %q", out)
	}
}

func TestBuildExcludeAlwaysWins(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))

	tests := []struct {
		name   string
		req    Request
		want   string
		absent []string
	}{
		{
			name:   "always included",
			req:    Request{Stage: StageClosing, Exclude: []string{"core_identity"}},
			want:   joined("LANGUAGE_RULES", "CLOSING", "TONE_STYLE"),
			absent: []string{"CORE_IDENTITY"},
		},
		{
			name:   "stage section",
			req:    Request{Stage: StageStartup, Exclude: []string{"tool_usage", "conversation_flow"}},
			want:   joined("CORE_IDENTITY", "LANGUAGE_RULES", "STARTUP_INSTRUCTIONS", "TONE_STYLE"),
			absent: []string{"TOOL_USAGE", "CONVERSATION_FLOW"},
		},
		{
			name:   "explicit include with duplicates",
			req:    Request{Include: []string{"faq_info", "closing", "faq_info"}, Exclude: []string{"faq_info"}},
			want:   "CLOSING",
			absent: []string{"FAQ_INFO"},
		},
		{
			name: "exclude unknown key is harmless",
			req:  Request{Stage: StageClosing, Exclude: []string{"nope"}},
			want: joined("CORE_IDENTITY", "LANGUAGE_RULES", "CLOSING", "TONE_STYLE"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := b.Build(tc.req)
			if got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
			for _, a := range tc.absent {
				if strings.Contains(got, a) {
					t.Fatalf("excluded %s present in %q", a, got)
				}
			}
		})
	}
}

func TestBuildDoesNotMutateRequestSlices(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	include := []string{"faq_info", "closing", "tone_style"}
	b.Build(Request{Include: include, Exclude: []string{"faq_info"}})
	if strings.Join(include, ",") != "faq_info,closing,tone_style" {
		t.Fatalf("include slice mutated: %v", include)
	}
}

func TestBuildSkipsEmptySections(t *testing.T) {
	b := NewBuilder(catalogForTest(t, map[string]string{
		"language_rules": "  \n\t ",
		"tone_style":     "",
	}))

	out := b.Build(Request{Stage: StageClosing})
	if out != joined("CORE_IDENTITY", "CLOSING") {
		t.Fatalf("expected empty sections skipped without blank artifacts, got %q", out)
	}
	if strings.Contains(out, "\n\n\n") {
		t.Fatalf("unexpected extra blank line: %q", out)
	}
}

func TestBuildUnknownSectionWarnsAndSkips(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	b := NewBuilder(catalogForTest(t, nil))
	out := b.Build(Request{Include: []string{"core_identity", "tone_styel", "closing"}})
	if out != joined("CORE_IDENTITY", "CLOSING") {
		t.Fatalf("unexpected output: %q", out)
	}
	if logs.FilterMessageSnippet("tone_styel").Len() != 1 {
		t.Fatalf("expected one warning naming the unknown key, got %v", logs.All())
	}
}

func TestBuildDateTimeAndGuardrailsOrder(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	now := time.Date(2026, 10, 17, 14, 5, 0, 0, time.UTC)

	out := b.Build(Request{
		Stage:      StageClosing,
		DateTime:   NewDateTimeInfo(now),
		Guardrails: "  Never share internal pricing.  ",
	})

	wantDateTime := `## CURRENT DATE AND TIME INFORMATION
- Current Date: October 17, 2026 (Saturday)
- Current Date (YYYY-MM-DD): 2026-10-17
- Current Time: 02:05 PM (UTC)
- Tomorrow's Date: October 18, 2026 (Sunday)
- Tomorrow's Date (YYYY-MM-DD): 2026-10-18
- Current timezone is UTC`
	want := joined("CORE_IDENTITY", "LANGUAGE_RULES", "CLOSING", "TONE_STYLE", wantDateTime, "  Never share internal pricing.  ")
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDateTimeMissingFieldsUsePlaceholder(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	out := b.Build(Request{
		Include:  []string{},
		DateTime: &DateTimeInfo{CurrentDate: "2026-10-17", Timezone: "IST"},
	})

	for _, line := range []string{
		"- Current Date: N/A (N/A)",
		"- Current Date (YYYY-MM-DD): 2026-10-17",
		"- Current Time: N/A (IST)",
		"- Current timezone is IST",
	} {
		if !strings.Contains(out, line) {
			t.Fatalf("expected %q in %q", line, out)
		}
	}
}

func TestBuildWhitespaceGuardrailsIgnored(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	out := b.Build(Request{Stage: Stage("x"), Guardrails: " \n "})
	if out != joined("CORE_IDENTITY", "LANGUAGE_RULES") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestBuildCompactIgnoresContext(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	want := joined("CORE_IDENTITY", "LANGUAGE_RULES", "MID_CONVERSATION")

	if got := b.BuildCompact(nil); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
	if got := b.BuildCompact(map[string]any{"stage": "closing", "user": "ravi"}); got != want {
		t.Fatalf("context must not change compact prompt, got %q", got)
	}

	b = NewBuilder(catalogForTest(t, map[string]string{"language_rules": " "}))
	if got := b.BuildCompact(nil); got != joined("CORE_IDENTITY", "MID_CONVERSATION") {
		t.Fatalf("expected empty section skipped, got %q", got)
	}
}

func TestPlan(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	got := b.Plan(Request{Stage: StageActive, Exclude: []string{"tone_style"}})
	want := []string{"core_identity", "language_rules", "mid_conversation", "tool_usage"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}

	got = b.Plan(Request{Stage: StageStartup, Include: []string{}})
	if diff := cmp.Diff([]string{}, got); diff != "" {
		t.Fatalf("empty include plan mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStage(t *testing.T) {
	if ParseStage(" Closing ") != StageClosing {
		t.Fatalf("expected closing")
	}
	if ParseStage("mid_conversation").Known() != true {
		t.Fatalf("expected mid_conversation known")
	}
	if ParseStage("unknown_stage").Known() {
		t.Fatalf("expected unknown stage")
	}
}

func TestBuildConcurrent(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	want := b.Build(Request{Stage: StageStartup})

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := b.Build(Request{Stage: StageStartup}); got != want {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Fatalf("concurrent build diverged: %q", got)
	}
}

func TestSetCatalogSwapsSource(t *testing.T) {
	b := NewBuilder(catalogForTest(t, nil))
	withRec := b.WithRecorder(nil)
	if withRec.Catalog() != b.Catalog() {
		t.Fatalf("expected WithRecorder to keep the catalog")
	}

	b.SetCatalog(catalogForTest(t, map[string]string{"closing": "GOODBYE"}))
	out := b.Build(Request{Stage: StageClosing})
	if out != joined("CORE_IDENTITY", "LANGUAGE_RULES", "GOODBYE", "TONE_STYLE") {
		t.Fatalf("expected swapped catalog text, got %q", out)
	}
}
