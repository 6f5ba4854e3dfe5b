// Package view loads transcripts and renders them through the lane and
// display projections.
package view

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"hailog/internal/display"
	"hailog/internal/format"
	"hailog/internal/hail"
	"hailog/internal/lane"
	"hailog/internal/normalize"
	"hailog/internal/store"
)

// Options defines the configurable parameters for rendering a view.
type Options struct {
	Refs     []string
	Format   string
	Wrap     int
	MaxItems int
	// Filter is a comma separated key list; it only applies when FilterSet.
	Filter       string
	FilterSet    bool
	Taxonomy     string
	Mode         string
	Toggle       []string
	Body         bool
	ForceColor   bool
	ForceNoColor bool
	DefaultTags  []string
	Logger       *slog.Logger
	Out          io.Writer
	OutFile      *os.File
}

// Loaded is a normalized session with its lane reconstruction.
type Loaded struct {
	Session *hail.Session
	Report  normalize.Report
	Lanes   lane.Result
}

// Load reads and normalizes refs into one session.
func Load(ctx context.Context, refs []string, opts normalize.Options) (Loaded, error) {
	sources, err := store.LoadSources(ctx, refs)
	if err != nil {
		return Loaded{}, err
	}
	session, report, err := normalize.Normalize(sources, opts)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Session: session, Report: report, Lanes: lane.Build(session.Events)}, nil
}

// DisplayOptions translates the view flags for a session recorded by tool.
func DisplayOptions(opts Options, tool string) (display.Options, error) {
	mode, err := display.ParseMode(opts.Mode)
	if err != nil {
		return display.Options{}, err
	}
	out := display.Options{Mode: mode}
	if len(opts.Toggle) > 0 {
		out.Toggled = make(map[string]bool, len(opts.Toggle))
		for _, id := range opts.Toggle {
			out.Toggled[id] = true
		}
	}
	if opts.FilterSet {
		taxonomy, err := display.ParseTaxonomy(opts.Taxonomy)
		if err != nil {
			return display.Options{}, err
		}
		out.Filter = &display.FilterSpec{
			Taxonomy: taxonomy,
			Enabled:  display.ParseKeys(opts.Filter),
			Tool:     tool,
		}
	}
	return out, nil
}

// Run renders one session according to the provided options.
func Run(ctx context.Context, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if len(opts.Refs) == 0 {
		return fmt.Errorf("no transcript given")
	}

	formatMode := strings.ToLower(opts.Format)
	if formatMode == "" {
		formatMode = "text"
	}
	if formatMode == "raw" {
		for _, ref := range opts.Refs {
			if err := copyFile(opts.Out, ref); err != nil {
				return err
			}
		}
		return nil
	}

	loaded, err := Load(ctx, opts.Refs, normalize.Options{Logger: opts.Logger, DefaultTags: opts.DefaultTags})
	if err != nil {
		return err
	}

	if formatMode == "jsonl" {
		return hail.WriteJSONL(opts.Out, loaded.Session)
	}

	dopts, err := DisplayOptions(opts, loaded.Session.Agent.Tool)
	if err != nil {
		return err
	}
	items := display.Build(loaded.Lanes, dopts)
	if opts.MaxItems > 0 && len(items) > opts.MaxItems {
		items = items[len(items)-opts.MaxItems:]
	}

	switch formatMode {
	case "text":
		return format.RenderItems(opts.Out, items, format.RenderOptions{
			Width:   opts.Wrap,
			Color:   resolveColorChoice(opts),
			Body:    opts.Body,
			MaxLane: loaded.Lanes.MaxLane(),
		})

	case "chat":
		colorEnabled := resolveColorChoice(opts)
		width := determineWidth(opts.OutFile, opts.Wrap)

		lines := renderChatTranscript(items, width, colorEnabled)
		if len(lines) == 0 {
			return nil
		}
		if opts.OutFile != nil && isatty.IsTerminal(opts.OutFile.Fd()) {
			return pipeThroughPager(lines, colorEnabled)
		}
		return writeLines(opts.Out, lines)

	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

func determineWidth(out *os.File, wrap int) int {
	if wrap > 0 {
		return wrap
	}
	if out != nil {
		if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if colsStr := os.Getenv("COLUMNS"); colsStr != "" {
		if v, err := strconv.Atoi(colsStr); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func pipeThroughPager(lines []string, colorEnabled bool) error {
	text := strings.Join(lines, "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	pagerCmd := os.Getenv("PAGER")
	var cmd *exec.Cmd
	if pagerCmd == "" {
		args := []string{"less"}
		if colorEnabled {
			args = append(args, "-R")
		}
		cmd = exec.Command(args[0], args[1:]...) // #nosec G204
	} else {
		cmd = exec.Command("sh", "-c", pagerCmd) // #nosec G204
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create pager pipe: %w", err)
	}
	go func() {
		defer stdin.Close()
		io.WriteString(stdin, text) //nolint:errcheck
	}()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run pager: %w", err)
	}

	return nil
}

func writeLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func resolveColorChoice(opts Options) bool {
	if opts.ForceColor {
		return true
	}
	if opts.ForceNoColor {
		return false
	}
	return shouldUseColorAuto(opts.Out)
}

func shouldUseColorAuto(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(dst, f)
	return err
}
