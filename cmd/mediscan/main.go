package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/bryanwahyu/mediscan/internal/application/pipeline"
	"github.com/bryanwahyu/mediscan/internal/bootstrap"
	"github.com/bryanwahyu/mediscan/internal/config"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/infra/selector"
	xlog "github.com/bryanwahyu/mediscan/internal/log"
)

// Build info - set via ldflags
var (
	version = "dev"
	commit  = "none"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A78BFA")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#38BDF8")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#34D399"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F87171"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#38BDF8")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	logo = `
    ╭─────────────────────────────────────╮
    │  MediScan - AI Medical Media Review │
    ╰─────────────────────────────────────╯`
)

const (
	actionAnalyze  = "analyze"
	actionRetry    = "retry"
	actionExport   = "export"
	actionNewMedia = "media"
	actionExit     = "exit"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("mediscan %s (%s, %s)\n", version, commit, runtime.Version())
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	// log ke stderr supaya tidak bercampur dengan form
	level := cfg.Logging.Level
	if level == "" {
		level = "warn"
	}
	xlog.Configure(xlog.Config{Level: level, Pretty: true, Output: os.Stderr, Service: "mediscan"})
	logger := xlog.WithComponent("terminal")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	term := selector.NewTerminal(cfg.Selector.StartDir, deps.Probe)
	c := &client{
		orch:    deps.Orchestrator(term).WithSessionID(uuid.NewString()),
		catalog: deps.Catalog,
	}

	fmt.Println(titleStyle.Render(logo))
	for c.session(ctx) {
	}
	c.orch.Reset()

	fmt.Println(subtitleStyle.Render("\nStay healthy. Bye!"))
	return nil
}

type client struct {
	orch    *pipeline.Orchestrator
	catalog *analysis.Catalog
	kind    media.Kind
}

// session runs one media selection and everything done with it. It returns
// false when the user wants to leave.
func (c *client) session(ctx context.Context) bool {
	kind, err := chooseKind(ctx)
	if err != nil {
		return false
	}
	c.kind = kind

	out, err := c.orch.SelectMedia(ctx, media.SelectRequest{Kind: kind})
	switch {
	case err != nil:
		fmt.Println(errorStyle.Render(out.Notice))
		return askToContinue(ctx)
	case out.Canceled:
		fmt.Println(infoStyle.Render(out.Notice))
		return askToContinue(ctx)
	}
	fmt.Println(boxStyle.Render(describeAsset(out.Asset)))

	next := actionAnalyze
	for {
		switch next {
		case actionAnalyze:
			next = c.analyze(ctx)
		case actionRetry:
			next = c.retry(ctx)
		case actionExport:
			next = c.export(ctx)
		case actionNewMedia:
			return true
		default:
			return false
		}
	}
}

func (c *client) analyze(ctx context.Context) string {
	typeID, prompt, err := c.chooseAnalysis(ctx)
	if err != nil {
		return c.nextAction(ctx)
	}

	var (
		res    analysis.Result
		runErr error
	)
	err = spinner.New().
		Title("Uploading and analyzing... this can take a minute").
		Action(func() {
			res, runErr = c.orch.RunAnalysis(ctx, typeID, prompt)
		}).
		Run()
	if err == nil {
		err = runErr
	}
	return c.afterAnalysis(ctx, res, err)
}

func (c *client) retry(ctx context.Context) string {
	var (
		res    analysis.Result
		runErr error
	)
	err := spinner.New().
		Title("Retrying...").
		Action(func() {
			res, runErr = c.orch.Retry(ctx)
		}).
		Run()
	if err == nil {
		err = runErr
	}
	return c.afterAnalysis(ctx, res, err)
}

func (c *client) afterAnalysis(ctx context.Context, res analysis.Result, err error) string {
	switch {
	case err == nil:
		fmt.Println(c.renderResult(res))
	case errors.Is(err, analysis.ErrUploadFailed):
		fmt.Println(errorStyle.Render("Upload failed: " + err.Error()))
	case errors.Is(err, analysis.ErrAnalysisFailed):
		fmt.Println(errorStyle.Render("Analysis failed: " + err.Error()))
	default:
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
	}
	return c.nextAction(ctx)
}

func (c *client) export(ctx context.Context) string {
	var patient string
	input := huh.NewInput().
		Title("Patient name").
		Description("Printed on the report and used in the file name. Leave empty for \"Patient\".").
		Placeholder("Jane Doe").
		CharLimit(120).
		Value(&patient)

	err := huh.NewForm(huh.NewGroup(input)).
		WithTheme(huh.ThemeCatppuccin()).
		RunWithContext(ctx)
	if err != nil {
		return c.nextAction(ctx)
	}

	var (
		out    exportOutcome
		runErr error
	)
	err = spinner.New().
		Title("Generating PDF report...").
		Action(func() {
			out.ExportResult, runErr = c.orch.Export(ctx, patient)
		}).
		Run()
	if err == nil {
		err = runErr
	}
	if err != nil {
		fmt.Println(errorStyle.Render("Export failed: " + err.Error()))
		return c.nextAction(ctx)
	}
	fmt.Println(successStyle.Render(boxStyle.Render(out.String())))
	return c.nextAction(ctx)
}

// nextAction offers what the current state allows.
func (c *client) nextAction(ctx context.Context) string {
	var opts []huh.Option[string]
	switch c.orch.State().(type) {
	case pipeline.Failed:
		opts = append(opts, huh.NewOption("Retry", actionRetry))
	case pipeline.ResultReady:
		opts = append(opts, huh.NewOption("Export PDF report", actionExport))
	}
	opts = append(opts,
		huh.NewOption("Run another analysis on this media", actionAnalyze),
		huh.NewOption("Pick new media", actionNewMedia),
		huh.NewOption("Exit", actionExit),
	)

	var choice string
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("What next?").
			Options(opts...).
			Value(&choice),
	)).
		WithTheme(huh.ThemeCatppuccin()).
		RunWithContext(ctx)
	if err != nil {
		return actionExit
	}
	return choice
}

func (c *client) chooseAnalysis(ctx context.Context) (string, string, error) {
	var opts []huh.Option[string]
	for _, d := range c.catalog.List(c.kind) {
		opts = append(opts, huh.NewOption(d.Label, d.ID))
	}

	var typeID string
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Analysis type").
			Options(opts...).
			Value(&typeID),
	)).
		WithTheme(huh.ThemeCatppuccin()).
		RunWithContext(ctx)
	if err != nil {
		return "", "", err
	}
	if typeID != analysis.CustomTypeID {
		return typeID, "", nil
	}

	var prompt string
	err = huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title("What should the model look for?").
			Placeholder("Describe the analysis you need...").
			CharLimit(4000).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return pipeline.ErrPromptRequired
				}
				return nil
			}).
			Value(&prompt),
	)).
		WithTheme(huh.ThemeCatppuccin()).
		RunWithContext(ctx)
	return typeID, prompt, err
}

func chooseKind(ctx context.Context) (media.Kind, error) {
	var kind media.Kind
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[media.Kind]().
			Title("What would you like to analyze?").
			Options(
				huh.NewOption("Image (X-ray, CT, MRI, skin...)", media.KindImage),
				huh.NewOption("Video (ECG, ultrasound, endoscopy...)", media.KindVideo),
			).
			Value(&kind),
	)).
		WithTheme(huh.ThemeCatppuccin()).
		RunWithContext(ctx)
	return kind, err
}

func askToContinue(ctx context.Context) bool {
	var again bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Try again?").
			Affirmative("Yes").
			Negative("Exit").
			Value(&again),
	)).
		WithTheme(huh.ThemeCatppuccin()).
		RunWithContext(ctx)
	return err == nil && again
}
