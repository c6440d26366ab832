package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"doctrans/internal/domain"
	"doctrans/internal/infra"
)

// report mirrors one machine-readable progress line printed by the
// babeldoc CLI when invoked with --report-json.
type report struct {
	Type          string  `json:"type"`
	Stage         string  `json:"stage"`
	Overall       float64 `json:"overall_progress"`
	StageProgress float64 `json:"stage_progress"`
	Message       string  `json:"message"`
	MonoPath      string  `json:"mono_pdf_path"`
	DualPath      string  `json:"dual_pdf_path"`
	Error         string  `json:"error"`
}

// BabelDOC drives the external babeldoc command line tool. One process is
// spawned per job; progress is decoded from JSON lines on stdout.
type BabelDOC struct {
	command string
	logger  infra.Logger
}

// NewBabelDOC creates an adapter invoking the given command.
func NewBabelDOC(command string, logger infra.Logger) *BabelDOC {
	if strings.TrimSpace(command) == "" {
		command = "babeldoc"
	}
	return &BabelDOC{command: command, logger: logger}
}

// Execute implements Engine.
func (b *BabelDOC) Execute(ctx context.Context, job Job) <-chan domain.ProgressEvent {
	events := make(chan domain.ProgressEvent, 16)
	go func() {
		defer close(events)
		b.run(ctx, job, events)
	}()
	return events
}

// run executes the process and translates its reports into events. It
// emits exactly one terminal event on every path.
func (b *BabelDOC) run(ctx context.Context, job Job, events chan<- domain.ProgressEvent) {
	terminal := false
	emit := func(ev domain.ProgressEvent) {
		if terminal {
			return
		}
		if ev.Kind.Terminal() {
			terminal = true
		}
		events <- ev
	}

	args := b.buildArgs(job)
	cmd := exec.CommandContext(ctx, b.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		emit(failedEvent(&domain.EngineError{
			Kind: domain.EngineErrorInternal, Message: "cannot attach to engine output", Err: err,
		}))
		return
	}
	if err := cmd.Start(); err != nil {
		emit(failedEvent(&domain.EngineError{
			Kind: domain.EngineErrorInternal, Message: fmt.Sprintf("engine failed to start: %v", err), Err: err,
		}))
		return
	}

	currentStage := ""
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var rep report
		if err := json.Unmarshal([]byte(line), &rep); err != nil {
			b.logger.Debug().Str("task_id", job.TaskID).Str("line", line).Msg("unparseable engine report")
			continue
		}

		switch rep.Type {
		case "progress_update":
			if rep.Stage != currentStage {
				if currentStage != "" {
					emit(domain.ProgressEvent{
						Kind:    domain.EventStageFinished,
						Stage:   currentStage,
						Percent: rep.Overall,
					})
				}
				currentStage = rep.Stage
				emit(domain.ProgressEvent{
					Kind:    domain.EventStageStarted,
					Stage:   rep.Stage,
					Percent: rep.Overall,
					Message: rep.Message,
				})
			}
			emit(domain.ProgressEvent{
				Kind:         domain.EventStageProgress,
				Stage:        rep.Stage,
				Percent:      rep.Overall,
				StagePercent: rep.StageProgress,
				Message:      rep.Message,
			})
		case "finish":
			if currentStage != "" {
				emit(domain.ProgressEvent{
					Kind:    domain.EventStageFinished,
					Stage:   currentStage,
					Percent: 100,
				})
				currentStage = ""
			}
			artifacts, err := collectArtifacts(job, rep)
			if err != nil {
				emit(failedEvent(err))
				continue
			}
			emit(domain.ProgressEvent{
				Kind:      domain.EventCompleted,
				Message:   rep.Message,
				Artifacts: artifacts,
			})
		case "error":
			emit(failedEvent(classify(rep.Error)))
		}
	}

	waitErr := cmd.Wait()
	if terminal {
		return
	}
	if ctx.Err() != nil {
		emit(domain.ProgressEvent{
			Kind:  domain.EventCancelled,
			Cause: "cancellation acknowledged by engine",
		})
		return
	}
	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		emit(failedEvent(classify(detail)))
		return
	}
	emit(failedEvent(&domain.EngineError{
		Kind:    domain.EngineErrorInternal,
		Message: "engine exited without reporting a result",
	}))
}

func (b *BabelDOC) buildArgs(job Job) []string {
	cfg := job.Config
	args := []string{
		"--report-json",
		"--files", job.InputPath,
		"--output", job.OutputDir,
		"--lang-in", cfg.LangIn,
		"--lang-out", cfg.LangOut,
		"--qps", strconv.Itoa(cfg.QPS),
		"--openai",
		"--openai-model", cfg.Model,
		"--openai-api-key", cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		args = append(args, "--openai-base-url", cfg.BaseURL)
	}
	if cfg.Pages != "" {
		args = append(args, "--pages", cfg.Pages)
	}
	if cfg.NoDual {
		args = append(args, "--no-dual")
	}
	if cfg.NoMono {
		args = append(args, "--no-mono")
	}
	for _, p := range job.GlossaryPaths {
		args = append(args, "--glossary-files", p)
	}
	return args
}

// collectArtifacts verifies the reported outputs exist on disk and maps
// them to store keys under the job's output prefix.
func collectArtifacts(job Job, rep report) ([]domain.ArtifactRef, error) {
	var refs []domain.ArtifactRef
	add := func(kind domain.ArtifactKind, reported string) error {
		if reported == "" {
			return &domain.EngineError{
				Kind:    domain.EngineErrorInternal,
				Message: fmt.Sprintf("engine finished without a %s output path", kind),
			}
		}
		full := reported
		if !filepath.IsAbs(full) {
			full = filepath.Join(job.OutputDir, reported)
		}
		if _, err := os.Stat(full); err != nil {
			return &domain.EngineError{
				Kind:    domain.EngineErrorInternal,
				Message: fmt.Sprintf("engine reported missing %s output: %s", kind, reported),
				Err:     err,
			}
		}
		refs = append(refs, domain.ArtifactRef{
			Kind: kind,
			Key:  path.Join(job.OutputKey, filepath.Base(full)),
		})
		return nil
	}

	if !job.Config.NoMono {
		if err := add(domain.ArtifactMono, rep.MonoPath); err != nil {
			return nil, err
		}
	}
	if !job.Config.NoDual {
		if err := add(domain.ArtifactDual, rep.DualPath); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

func failedEvent(err error) domain.ProgressEvent {
	return domain.ProgressEvent{
		Kind:  domain.EventFailed,
		Cause: err.Error(),
	}
}

// classify buckets an engine failure message into the error taxonomy.
func classify(detail string) *domain.EngineError {
	lower := strings.ToLower(detail)
	kind := domain.EngineErrorInternal
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "quota"):
		kind = domain.EngineErrorRateLimit
	case strings.Contains(lower, "extract") || strings.Contains(lower, "parse") || strings.Contains(lower, "layout"):
		kind = domain.EngineErrorExtraction
	case strings.Contains(lower, "connect") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "upstream") || strings.Contains(lower, "openai"):
		kind = domain.EngineErrorUpstream
	}
	return &domain.EngineError{Kind: kind, Message: detail}
}
