// SPDX-License-Identifier: MIT

// Command ingest runs a single music query through the pipeline in-process,
// prompting on stdin when the job pauses for disambiguation.
//
// Exit codes: 0 success, 1 failure, 2 paused for user input (--no-input).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/truetrack/truetrack/internal/config"
	ttlog "github.com/truetrack/truetrack/internal/log"
	"github.com/truetrack/truetrack/internal/media"
	"github.com/truetrack/truetrack/internal/media/ffmpeg"
	"github.com/truetrack/truetrack/internal/media/itunes"
	"github.com/truetrack/truetrack/internal/media/tagging"
	"github.com/truetrack/truetrack/internal/media/ytdlp"
	"github.com/truetrack/truetrack/internal/pipeline"
	"github.com/truetrack/truetrack/internal/pipeline/model"
	"github.com/truetrack/truetrack/internal/settings"
	"github.com/truetrack/truetrack/internal/store"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitPaused  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	ask := flag.Bool("ask", false, "ask before choosing song identity")
	verbose := flag.Bool("verbose", false, "show engine logs")
	dryRun := flag.Bool("dry-run", false, "simulate without downloading")
	forceArchive := flag.Bool("force-archive", false, "skip metadata matching")
	noInput := flag.Bool("no-input", false, "exit instead of prompting on pauses")
	doctor := flag.Bool("doctor", false, "check external dependencies and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		return exitFailure
	}

	level := "error"
	if *verbose {
		level = cfg.LogLevel
	}
	ttlog.Configure(ttlog.Config{Level: level, Service: "truetrack-ingest"})

	if *doctor {
		return runDoctor(cfg.ToolsDir)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ingest [flags] \"artist - title\"")
		return exitFailure
	}
	query := flag.Arg(0)

	if code := checkDependencies(cfg.ToolsDir); code != exitSuccess {
		return code
	}

	// The CLI runs fully in-process; durable storage is only needed for the
	// settings table, so a memory store suffices without a DB path.
	var st store.JobStore
	if cfg.DBPath != "" {
		sqliteStore, err := store.NewSqliteStore(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest: open store: %v\n", err)
			return exitFailure
		}
		st = sqliteStore
	} else {
		st = store.NewMemoryStore()
	}
	defer func() { _ = st.Close() }()

	resolver := &settings.Resolver{KV: st, Env: cfg.MusicLibraryRoot}
	source := &ytdlp.Client{ToolsDir: cfg.ToolsDir}
	meta := &itunes.Client{}
	pipe := pipeline.NewDefault(pipeline.Deps{
		Identity:   source,
		Downloader: source,
		Transcoder: &ffmpeg.Transcoder{ToolsDir: cfg.ToolsDir},
		Metadata:   meta,
		Tagger:     &tagging.Tagger{Art: meta},
		Library:    resolver,
		TempRoot:   filepath.Join(os.TempDir(), "truetrack"),
	})

	job := model.NewJob(query, model.Options{
		Ask:          *ask,
		Verbose:      *verbose,
		DryRun:       *dryRun,
		ForceArchive: *forceArchive,
	})
	job.TransitionTo(model.StateResolvingIdentity)

	code := drive(ctx, pipe, job, *noInput)
	printSummary(job)
	return code
}

// drive advances the job step by step until it is terminal or pauses without
// an input source.
func drive(ctx context.Context, pipe *pipeline.Pipeline, job *model.Job, noInput bool) int {
	reader := bufio.NewReader(os.Stdin)

	for !job.CurrentState.IsTerminal() {
		if err := pipe.Step(ctx, job); err != nil {
			if pe, ok := err.(*model.PipelineError); ok {
				job.Fail(pe.Code, pe.Message)
			} else {
				job.Fail(model.CodeExternalToolError, err.Error())
			}
			break
		}

		if job.LastMessage != "" {
			fmt.Println("•", job.LastMessage)
			job.LastMessage = ""
		}

		if !job.CurrentState.IsPause() {
			continue
		}
		if noInput {
			fmt.Println("job paused for user input")
			return exitPaused
		}

		switch job.CurrentState {
		case model.StateUserIntentSelection:
			choice, ok := promptIntent(reader, job.SourceCandidates)
			if !ok {
				job.Fail(model.CodeUserAbort, "user cancelled intent selection")
				break
			}
			if err := pipeline.SelectIntent(job, choice); err != nil {
				fmt.Fprintln(os.Stderr, "ingest:", err)
			}
		case model.StateUserMetadataSelection:
			choice, ok := promptMetadata(reader, job.MetadataCandidates)
			if !ok {
				job.Fail(model.CodeUserAbort, "user cancelled metadata selection")
				break
			}
			if err := pipeline.SelectMetadata(job, choice); err != nil {
				fmt.Fprintln(os.Stderr, "ingest:", err)
			}
		}
	}

	if job.CurrentState == model.StateFailed {
		return exitFailure
	}
	return exitSuccess
}

func promptIntent(reader *bufio.Reader, candidates []model.SourceCandidate) (int, bool) {
	fmt.Println("\nWhich recording did you mean?")
	for i, c := range candidates {
		fmt.Printf("  [%d] %s — %s (%ds, score %d)\n",
			i, c.Title, strings.Join(c.Artists, ", "), c.Duration, c.Score)
	}
	return promptChoice(reader, len(candidates))
}

func promptMetadata(reader *bufio.Reader, candidates []model.Metadata) (int, bool) {
	fmt.Println("\nWhich metadata record matches?")
	for i, m := range candidates {
		fmt.Printf("  [%d] %s — %s (%s)\n",
			i, m.String("trackName"), m.String("artistName"), m.String("collectionName"))
	}
	return promptChoice(reader, len(candidates))
}

func promptChoice(reader *bufio.Reader, n int) (int, bool) {
	for {
		fmt.Print("choice (empty to abort): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return 0, false
		}
		choice, err := strconv.Atoi(line)
		if err != nil || choice < 0 || choice >= n {
			fmt.Printf("enter a number between 0 and %d\n", n-1)
			continue
		}
		return choice, true
	}
}

func printSummary(job *model.Job) {
	fmt.Println()
	switch job.CurrentState {
	case model.StateFinalized:
		r := job.Result
		if r.Archived {
			fmt.Printf("archived: %s\n", r.Path)
		} else {
			fmt.Printf("stored: %s\n", r.Path)
		}
		if r.Title != "" {
			fmt.Printf("  %s — %s\n", r.Title, r.Artist)
		}
		if r.Reason != "" {
			fmt.Printf("  note: %s\n", r.Reason)
		}
	case model.StateFailed:
		fmt.Fprintf(os.Stderr, "failed in %s: %s (%s)\n",
			job.FailedState, job.ErrorMessage, job.ErrorCode)
	default:
		fmt.Printf("job ended in %s\n", job.CurrentState)
	}
}

func checkDependencies(toolsDir string) int {
	missing := false
	for _, tool := range []string{"yt-dlp", "ffmpeg"} {
		if _, err := media.ResolveTool(toolsDir, tool); err != nil {
			fmt.Fprintf(os.Stderr, "missing dependency: %s\n", tool)
			missing = true
		}
	}
	if missing {
		fmt.Fprintln(os.Stderr, "install the tools above and ensure they are on PATH")
		return exitFailure
	}
	return exitSuccess
}

// runDoctor reports where each external dependency resolves from.
func runDoctor(toolsDir string) int {
	ok := true
	fmt.Println("external tools:")
	for _, tool := range []string{"yt-dlp", "ffmpeg"} {
		path, err := media.ResolveTool(toolsDir, tool)
		if err != nil {
			fmt.Printf("  %-8s MISSING\n", tool)
			ok = false
			continue
		}
		fmt.Printf("  %-8s %s\n", tool, path)
	}

	fmt.Println("environment:")
	for _, key := range []string{"TRUETRACK_DB_PATH", "MUSIC_LIBRARY_ROOT", "TRUETRACK_TOOLS_DIR"} {
		value := os.Getenv(key)
		if value == "" {
			value = "(unset)"
		}
		fmt.Printf("  %-22s %s\n", key, value)
	}

	if !ok {
		return exitFailure
	}
	return exitSuccess
}
