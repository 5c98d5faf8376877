package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"chunkplan/internal/crawl"
	"chunkplan/internal/ui"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

func shouldUseTUI(mode uiMode) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	default:
		return isTerminal(os.Stdout)
	}
}

type replayOutcome struct {
	result crawl.Result
	err    error
}

// runReplayWithUI replays the log while a progress view renders build events.
// opts.Progress is replaced by the view's channel.
func runReplayWithUI(ctx context.Context, title string, in io.Reader, opts crawl.Options) (*crawl.Build, crawl.Result, error) {
	events := make(chan crawl.Event, 256)
	opts.Progress = crawl.ChannelSink{Ch: events}
	b := crawl.New(opts)

	outcomeCh := make(chan replayOutcome, 1)
	go func() {
		res, err := crawl.Replay(ctx, in, b)
		outcomeCh <- replayOutcome{result: res, err: err}
		close(events)
	}()

	// stdin may carry the discovery log, the view takes no input
	program := tea.NewProgram(ui.NewProgressModel(title, events), tea.WithOutput(os.Stdout), tea.WithInput(nil))
	_, uiErr := program.Run()
	outcome := awaitReplay(events, outcomeCh)
	if uiErr != nil {
		return b, outcome.result, uiErr
	}
	return b, outcome.result, outcome.err
}

// awaitReplay waits for the replay goroutine. The view may have quit early
// (ctrl+c), so pending events are drained or the sink would block Replay.
func awaitReplay(events <-chan crawl.Event, outcomeCh <-chan replayOutcome) replayOutcome {
	go func() {
		for range events {
		}
	}()
	return <-outcomeCh
}
