package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"doctrans/internal/domain"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "babeldoc.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func testJob(t *testing.T) Job {
	t.Helper()
	outDir := t.TempDir()
	for _, name := range []string{"mono.pdf", "dual.pdf"} {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatalf("write output fixture: %v", err)
		}
	}
	return Job{
		TaskID:    "t1",
		Config:    domain.JobConfig{FileID: "f1", LangIn: "en", LangOut: "zh", Model: "gpt-4o-mini", QPS: 1},
		InputPath: filepath.Join(outDir, "input.pdf"),
		OutputDir: outDir,
		OutputKey: "outputs/t1",
	}
}

func collect(t *testing.T, stream <-chan domain.ProgressEvent) []domain.ProgressEvent {
	t.Helper()
	var events []domain.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream never closed; got %d events", len(events))
		}
	}
}

func TestExecuteHappyPath(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"progress_update","stage":"layout","overall_progress":10,"stage_progress":20,"message":"analyzing"}'
echo '{"type":"progress_update","stage":"layout","overall_progress":40,"stage_progress":90}'
echo 'not json noise'
echo '{"type":"progress_update","stage":"translate","overall_progress":60}'
echo '{"type":"finish","mono_pdf_path":"mono.pdf","dual_pdf_path":"dual.pdf"}'
`)
	eng := NewBabelDOC(script, zerolog.Nop())
	events := collect(t, eng.Execute(context.Background(), testJob(t)))

	var kinds []domain.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []domain.EventKind{
		domain.EventStageStarted,  // layout
		domain.EventStageProgress, // 10%
		domain.EventStageProgress, // 40%
		domain.EventStageFinished, // layout
		domain.EventStageStarted,  // translate
		domain.EventStageProgress, // 60%
		domain.EventStageFinished, // translate
		domain.EventCompleted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}

	final := events[len(events)-1]
	if len(final.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v, want mono and dual", final.Artifacts)
	}
	if final.Artifacts[0].Key != "outputs/t1/mono.pdf" || final.Artifacts[1].Key != "outputs/t1/dual.pdf" {
		t.Fatalf("artifact keys = %+v", final.Artifacts)
	}
}

func TestExecuteRespectsOutputModeFlags(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"finish","mono_pdf_path":"mono.pdf","dual_pdf_path":""}'
`)
	eng := NewBabelDOC(script, zerolog.Nop())
	job := testJob(t)
	job.Config.NoDual = true

	events := collect(t, eng.Execute(context.Background(), job))
	final := events[len(events)-1]
	if final.Kind != domain.EventCompleted {
		t.Fatalf("final kind = %s, want completed", final.Kind)
	}
	if len(final.Artifacts) != 1 || final.Artifacts[0].Kind != domain.ArtifactMono {
		t.Fatalf("artifacts = %+v, want mono only", final.Artifacts)
	}
}

func TestExecuteMissingOutputFails(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"finish","mono_pdf_path":"nonexistent.pdf","dual_pdf_path":"dual.pdf"}'
`)
	eng := NewBabelDOC(script, zerolog.Nop())
	events := collect(t, eng.Execute(context.Background(), testJob(t)))

	final := events[len(events)-1]
	if final.Kind != domain.EventFailed {
		t.Fatalf("final kind = %s, want failed", final.Kind)
	}
	if !strings.Contains(final.Cause, "missing mono output") {
		t.Fatalf("cause = %q", final.Cause)
	}
}

func TestExecuteReportedError(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"progress_update","stage":"translate","overall_progress":30}'
echo '{"type":"error","error":"openai: rate limit exceeded"}'
`)
	eng := NewBabelDOC(script, zerolog.Nop())
	events := collect(t, eng.Execute(context.Background(), testJob(t)))

	final := events[len(events)-1]
	if final.Kind != domain.EventFailed {
		t.Fatalf("final kind = %s, want failed", final.Kind)
	}
	if !strings.Contains(final.Cause, "rate_limit") {
		t.Fatalf("cause = %q, want rate_limit classification", final.Cause)
	}
}

func TestExecuteProcessFailure(t *testing.T) {
	script := writeScript(t, `
echo 'failed to extract document layout' >&2
exit 3
`)
	eng := NewBabelDOC(script, zerolog.Nop())
	events := collect(t, eng.Execute(context.Background(), testJob(t)))

	if len(events) != 1 {
		t.Fatalf("events = %+v, want single failed event", events)
	}
	if events[0].Kind != domain.EventFailed || !strings.Contains(events[0].Cause, "extraction") {
		t.Fatalf("event = %+v, want classified extraction failure", events[0])
	}
}

func TestExecuteCancellation(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"progress_update","stage":"translate","overall_progress":5}'
sleep 30
`)
	eng := NewBabelDOC(script, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stream := eng.Execute(ctx, testJob(t))

	// First two events: stage_started then stage_progress.
	<-stream
	<-stream
	cancel()

	events := collect(t, stream)
	if len(events) == 0 {
		t.Fatal("no terminal event after cancellation")
	}
	final := events[len(events)-1]
	if final.Kind != domain.EventCancelled {
		t.Fatalf("final kind = %s, want cancelled", final.Kind)
	}
}

func TestExecuteMissingCommand(t *testing.T) {
	eng := NewBabelDOC(filepath.Join(t.TempDir(), "no-such-binary"), zerolog.Nop())
	events := collect(t, eng.Execute(context.Background(), testJob(t)))
	if len(events) != 1 || events[0].Kind != domain.EventFailed {
		t.Fatalf("events = %+v, want single failed event", events)
	}
}

func TestBuildArgs(t *testing.T) {
	eng := NewBabelDOC("babeldoc", zerolog.Nop())
	job := testJob(t)
	job.Config.Pages = "1-3"
	job.Config.NoDual = true
	job.Config.BaseURL = "https://llm.example.com/v1"
	job.GlossaryPaths = []string{"/g/a.csv", "/g/b.csv"}

	args := strings.Join(eng.buildArgs(job), " ")
	for _, want := range []string{
		"--files " + job.InputPath,
		"--lang-in en",
		"--lang-out zh",
		"--pages 1-3",
		"--no-dual",
		"--openai-base-url https://llm.example.com/v1",
		"--glossary-files /g/a.csv",
		"--glossary-files /g/b.csv",
		"--report-json",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
	if strings.Contains(args, "--no-mono") {
		t.Fatalf("args %q unexpectedly disable mono output", args)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		detail string
		want   domain.EngineErrorKind
	}{
		{"rate limit exceeded", domain.EngineErrorRateLimit},
		{"HTTP 429 from provider", domain.EngineErrorRateLimit},
		{"failed to parse page 3", domain.EngineErrorExtraction},
		{"doc layout model crashed", domain.EngineErrorExtraction},
		{"openai: connection refused", domain.EngineErrorUpstream},
		{"request timeout", domain.EngineErrorUpstream},
		{"segfault", domain.EngineErrorInternal},
	}
	for _, tc := range tests {
		t.Run(tc.detail, func(t *testing.T) {
			if got := classify(tc.detail); got.Kind != tc.want {
				t.Fatalf("classify(%q).Kind = %s, want %s", tc.detail, got.Kind, tc.want)
			}
		})
	}
}
