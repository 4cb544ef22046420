package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/unbound-force/dri/internal/batch"
	"github.com/unbound-force/dri/internal/budget"
	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/lexicon"
	"github.com/unbound-force/dri/internal/report"
	"github.com/unbound-force/dri/internal/response"
	"github.com/unbound-force/dri/internal/scaffold"
	"github.com/unbound-force/dri/internal/subjects"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// logger is the application-wide structured logger (writes to stderr).
var logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: false,
})

// Set by build flags.
var version = "dev"

func main() {
	engine.Version = version

	var (
		configPath  string
		lexiconPath string
		verbose     bool
	)

	root := &cobra.Command{
		Use:   "dri",
		Short: "DRI: deficit indicator extraction and cross-validation",
		Long: `dri detects deficit indicators in clinical text with a
negation-aware keyword matcher, parses the indicator report a
language model produced for the same text, and cross-validates the
two into an agreement report and a Deficit Risk Index score.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel(charmlog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config file (default: "+config.FileName+" in the working directory)")
	root.PersistentFlags().StringVar(&lexiconPath, "lexicon", "",
		"path to lexicon file (default: from config, else built-in)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	g := func() globalParams {
		return globalParams{
			configPath:  configPath,
			lexiconPath: lexiconPath,
			stdin:       os.Stdin,
			stdout:      os.Stdout,
			stderr:      os.Stderr,
		}
	}

	root.AddCommand(newDetectCmd(g))
	root.AddCommand(newParseCmd(g))
	root.AddCommand(newCompareCmd(g))
	root.AddCommand(newBatchCmd(g))
	root.AddCommand(newBudgetCmd(g))
	root.AddCommand(newLexiconCmd(g))
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newInitCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalParams holds the persistent flags and I/O shared by every
// command.
type globalParams struct {
	configPath  string
	lexiconPath string
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
}

func validateFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
	}
	return nil
}

// loadEngine loads the configuration and lexicon named by g and builds
// an engine from them. An explicit --lexicon wins over the config's
// lexicon, which is resolved relative to the config file.
func loadEngine(g globalParams) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}

	path := g.lexiconPath
	if path == "" && cfg.Lexicon != "" {
		path = cfg.Lexicon
		if !filepath.IsAbs(path) {
			base := "."
			if g.configPath != "" {
				base = filepath.Dir(g.configPath)
			}
			path = filepath.Join(base, path)
		}
	}

	lex := lexicon.Default()
	if path != "" {
		logger.Debug("loading lexicon", "path", path)
		if lex, err = lexicon.Load(path); err != nil {
			return nil, nil, err
		}
	}

	e, err := engine.New(cfg, lex)
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// readSections reads each text file into one section named after it.
func readSections(paths []string, stdin io.Reader) ([]engine.Section, error) {
	sections := make([]engine.Section, 0, len(paths))
	for _, p := range paths {
		text, err := readInput(p, stdin)
		if err != nil {
			return nil, err
		}
		source := filepath.Base(p)
		if p == "-" {
			source = "stdin"
		}
		sections = append(sections, engine.Section{Source: source, Text: text})
	}
	return sections, nil
}

// ---------------------------------------------------------------------------
// detect
// ---------------------------------------------------------------------------

// detectParams holds the parsed flags for the detect command.
type detectParams struct {
	globalParams
	textPaths []string
	format    string
	all       bool
}

// runDetect is the extracted, testable body of the detect command.
func runDetect(p detectParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if len(p.textPaths) == 0 {
		return fmt.Errorf("--text is required")
	}
	e, _, err := loadEngine(p.globalParams)
	if err != nil {
		return err
	}
	sections, err := readSections(p.textPaths, p.stdin)
	if err != nil {
		return err
	}

	results := e.Detect(engine.Subject{Sections: sections}.Text())

	switch p.format {
	case "json":
		return report.Encode(p.stdout, results)
	default:
		return report.WriteDetectionsText(p.stdout, results, p.all)
	}
}

func newDetectCmd(g func() globalParams) *cobra.Command {
	var (
		textPaths []string
		format    string
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect indicators in clinical text with the keyword matcher",
		Long: `Run the negation-aware keyword matcher over one or more text
files and report, per indicator, whether it was detected, which
keywords matched, and snippets of the surrounding text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(detectParams{
				globalParams: g(),
				textPaths:    textPaths,
				format:       format,
				all:          all,
			})
		},
	}

	cmd.Flags().StringSliceVarP(&textPaths, "text", "t", nil,
		"clinical text file, repeatable (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")
	cmd.Flags().BoolVar(&all, "all", false,
		"list undetected indicators too")

	return cmd
}

// ---------------------------------------------------------------------------
// parse
// ---------------------------------------------------------------------------

// parseParams holds the parsed flags for the parse command.
type parseParams struct {
	globalParams
	completionPath string
	format         string
	strict         bool
}

// runParse is the extracted, testable body of the parse command.
func runParse(p parseParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if p.completionPath == "" {
		return fmt.Errorf("--completion is required")
	}
	raw, err := readInput(p.completionPath, p.stdin)
	if err != nil {
		return err
	}

	res := response.Parse(raw)
	if res.Status == response.StatusRepaired {
		logger.Warn("completion was repaired", "method", res.Method)
	}

	switch p.format {
	case "json":
		err = report.Encode(p.stdout, res)
	default:
		err = report.WriteParseText(p.stdout, res)
	}
	if err != nil {
		return err
	}

	if p.strict && !res.OK() {
		return res.Err
	}
	return nil
}

func newParseCmd(g func() globalParams) *cobra.Command {
	var (
		completionPath string
		format         string
		strict         bool
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a model completion into indicator records",
		Long: `Parse a raw model completion with the fallback ladder: envelope
unwrapping, fence stripping, object extraction, syntax repair and
truncation repair. Reports the records recovered and how.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(parseParams{
				globalParams:   g(),
				completionPath: completionPath,
				format:         format,
				strict:         strict,
			})
		},
	}

	cmd.Flags().StringVarP(&completionPath, "completion", "c", "",
		"raw completion file (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")
	cmd.Flags().BoolVar(&strict, "strict", false,
		"exit non-zero when the completion cannot be parsed")

	return cmd
}

// ---------------------------------------------------------------------------
// compare
// ---------------------------------------------------------------------------

// compareParams holds the parsed flags for the compare command.
type compareParams struct {
	globalParams
	id             string
	textPaths      []string
	completionPath string
	expected       []string
	format         string
	interactive    bool
}

// runCompare is the extracted, testable body of the compare command.
func runCompare(p compareParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if len(p.textPaths) == 0 || p.completionPath == "" {
		return fmt.Errorf("--text and --completion are required")
	}
	if countStdin(p.textPaths, p.completionPath) > 1 {
		return fmt.Errorf("stdin (-) can only be used for one input")
	}

	e, _, err := loadEngine(p.globalParams)
	if err != nil {
		return err
	}
	sections, err := readSections(p.textPaths, p.stdin)
	if err != nil {
		return err
	}
	completion, err := readInput(p.completionPath, p.stdin)
	if err != nil {
		return err
	}

	id := p.id
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(p.textPaths[0]), filepath.Ext(p.textPaths[0]))
	}

	start := time.Now()
	res := e.Evaluate(engine.Subject{ID: id, Sections: sections, Completion: completion, Expected: p.expected})
	logger.Info("comparison complete", "subject", id, "agreement", res.Comparison.Agreement)
	if res.Failed() {
		logger.Warn("completion could not be parsed", "subject", id, "error", res.Error)
	}

	if p.interactive {
		return runInteractiveCompare([]engine.SubjectResult{res})
	}

	results := []engine.SubjectResult{res}
	switch p.format {
	case "json":
		return report.WriteJSON(p.stdout, results, taxonomy.Metadata{
			EngineVersion: engine.Version,
			LexiconSize:   e.Lexicon().Len(),
			Timestamp:     start,
			Duration:      time.Since(start),
			Warnings:      res.Warnings,
		})
	default:
		return report.WriteText(p.stdout, results)
	}
}

func countStdin(textPaths []string, completionPath string) int {
	n := 0
	for _, p := range append(append([]string(nil), textPaths...), completionPath) {
		if p == "-" {
			n++
		}
	}
	return n
}

func newCompareCmd(g func() globalParams) *cobra.Command {
	var (
		id             string
		textPaths      []string
		completionPath string
		expected       []string
		format         string
		interactive    bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Cross-validate keyword detection against a model completion",
		Long: `Evaluate one subject end to end: keyword detection over the
clinical text, parsing of the model completion, the both / baseline
only / model only partition with its agreement ratio, a DRI score and
severity band for each side, and the context-size decision. With
--expected, both sides are also checked against ground truth.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(compareParams{
				globalParams:   g(),
				id:             id,
				textPaths:      textPaths,
				completionPath: completionPath,
				expected:       expected,
				format:         format,
				interactive:    interactive,
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "",
		"subject id (default: base name of the first text file)")
	cmd.Flags().StringSliceVarP(&textPaths, "text", "t", nil,
		"clinical text file, repeatable (- for stdin)")
	cmd.Flags().StringVarP(&completionPath, "completion", "c", "",
		"raw completion file (- for stdin)")
	cmd.Flags().StringSliceVar(&expected, "expected", nil,
		"reviewer-confirmed indicator ids to check both sides against")
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"launch interactive TUI for browsing the result")

	return cmd
}

// ---------------------------------------------------------------------------
// batch
// ---------------------------------------------------------------------------

// batchParams holds the parsed flags for the batch command.
type batchParams struct {
	globalParams
	manifest    string
	dir         string
	format      string
	concurrency int
	timeout     time.Duration
	worst       int
	maxFailures int
	interactive bool
	ctx         context.Context
}

// runBatch is the extracted, testable body of the batch command.
func runBatch(p batchParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if (p.manifest == "") == (p.dir == "") {
		return fmt.Errorf("exactly one of --manifest or --dir is required")
	}
	if p.ctx == nil {
		p.ctx = context.Background()
	}

	e, cfg, err := loadEngine(p.globalParams)
	if err != nil {
		return err
	}

	var list []engine.Subject
	if p.manifest != "" {
		list, err = subjects.LoadManifest(p.manifest)
	} else {
		list, err = subjects.ScanContext(p.ctx, p.dir, subjects.ScanOptions{Config: cfg.Batch.Scan})
	}
	if err != nil {
		return err
	}

	opts := batch.Options{
		Concurrency: cfg.Batch.Concurrency,
		Timeout:     cfg.Batch.Timeout,
		WorstCount:  p.worst,
		Logger:      logger,
	}
	if p.concurrency > 0 {
		opts.Concurrency = p.concurrency
	}
	if p.timeout > 0 {
		opts.Timeout = p.timeout
	}

	rpt, runErr := batch.Run(p.ctx, e, list, opts)
	if rpt == nil {
		return runErr
	}

	if p.interactive {
		if err := runInteractiveCompare(rpt.Results); err != nil {
			return err
		}
	} else if err := writeBatchReport(p.stdout, p.format, rpt); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	printCISummary(p.stderr, rpt, p.maxFailures)
	return checkCIThresholds(rpt, p.maxFailures)
}

// writeBatchReport outputs the batch report in the requested format.
func writeBatchReport(w io.Writer, format string, rpt *batch.Report) error {
	switch format {
	case "json":
		return batch.WriteJSON(w, rpt)
	default:
		return batch.WriteText(w, rpt)
	}
}

// printCISummary prints a one-line CI summary when a failure
// threshold is set.
func printCISummary(w io.Writer, rpt *batch.Report, maxFailures int) {
	if maxFailures < 0 {
		return
	}
	status := "PASS"
	if rpt.Summary.Failed > maxFailures {
		status = "FAIL"
	}
	fmt.Fprintf(w, "Failures: %d/%d (%s) | Mean agreement: %.4f",
		rpt.Summary.Failed, maxFailures, status, rpt.Summary.MeanAgreement)
	if a := rpt.Summary.ModelAccuracy; a != nil {
		fmt.Fprintf(w, " | Model precision: %.4f | FP rate: %.4f", a.Precision, a.FalsePositiveRate)
	}
	fmt.Fprintln(w)
}

// checkCIThresholds returns an error if the failure threshold is
// exceeded. A negative threshold disables the check.
func checkCIThresholds(rpt *batch.Report, maxFailures int) error {
	if maxFailures >= 0 && rpt.Summary.Failed > maxFailures {
		return fmt.Errorf("%d failed subject(s) exceeds maximum %d",
			rpt.Summary.Failed, maxFailures)
	}
	return nil
}

func newBatchCmd(g func() globalParams) *cobra.Command {
	var (
		manifest    string
		dir         string
		format      string
		concurrency int
		timeout     time.Duration
		worst       int
		maxFailures int
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate many subjects in parallel",
		Long: `Evaluate every subject of a manifest or a directory with bounded
concurrency. A failing subject is recorded on its own result and never
aborts the batch. Use --max-failures to gate CI on the number of
completions that could not be parsed. Manifest subjects with an
"expected" list of indicator ids add precision and false-positive rate
for both sides to the summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBatch(batchParams{
				globalParams: g(),
				manifest:     manifest,
				dir:          dir,
				format:       format,
				concurrency:  concurrency,
				timeout:      timeout,
				worst:        worst,
				maxFailures:  maxFailures,
				interactive:  interactive,
				ctx:          ctx,
			})
		},
	}

	cmd.Flags().StringVarP(&manifest, "manifest", "m", "",
		"YAML or JSON manifest listing subjects")
	cmd.Flags().StringVarP(&dir, "dir", "d", "",
		"directory of <id>.txt and <id>.completion.json files")
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0,
		"subjects evaluated at once (default: from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0,
		"bound the whole batch (default: from config)")
	cmd.Flags().IntVar(&worst, "worst", 5,
		"number of lowest-agreement subjects to list")
	cmd.Flags().IntVar(&maxFailures, "max-failures", -1,
		"fail if more subjects than this fail (-1 = no limit)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"launch interactive TUI for browsing results")

	return cmd
}

// ---------------------------------------------------------------------------
// budget
// ---------------------------------------------------------------------------

// budgetParams holds the parsed flags for the budget command.
type budgetParams struct {
	globalParams
	length    int
	textPaths []string
	format    string
}

// runBudget is the extracted, testable body of the budget command.
func runBudget(p budgetParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if (p.length >= 0) == (len(p.textPaths) > 0) {
		return fmt.Errorf("exactly one of --length or --text is required")
	}

	cfg, err := config.Load(p.configPath)
	if err != nil {
		return err
	}
	est, err := budget.New(budget.FromConfig(cfg.Context))
	if err != nil {
		return err
	}

	var d taxonomy.ContextSizeDecision
	if p.length >= 0 {
		d = est.Decide(p.length)
	} else {
		sections, err := readSections(p.textPaths, p.stdin)
		if err != nil {
			return err
		}
		texts := make([]string, len(sections))
		for i, s := range sections {
			texts[i] = s.Text
		}
		d = est.Estimate(texts...)
	}

	switch p.format {
	case "json":
		return report.Encode(p.stdout, d)
	default:
		return report.WriteBudgetText(p.stdout, d)
	}
}

func newBudgetCmd(g func() globalParams) *cobra.Command {
	var (
		length    int
		textPaths []string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Decide the processing mode and output budget for a context",
		Long: `Select standard or large processing mode from the total context
length (in runes) and report the output token budget that goes with
it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudget(budgetParams{
				globalParams: g(),
				length:       length,
				textPaths:    textPaths,
				format:       format,
			})
		},
	}

	cmd.Flags().IntVar(&length, "length", -1,
		"total context length in runes")
	cmd.Flags().StringSliceVarP(&textPaths, "text", "t", nil,
		"context section file, repeatable (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")

	return cmd
}

// ---------------------------------------------------------------------------
// lexicon
// ---------------------------------------------------------------------------

// lexiconParams holds the parsed flags for the lexicon command.
type lexiconParams struct {
	globalParams
	format string
}

// lexiconJSON is the JSON form of the lexicon command.
type lexiconJSON struct {
	TotalCount int                            `json:"total_count"`
	Indicators []taxonomy.IndicatorDefinition `json:"indicators"`
}

// runLexicon is the extracted, testable body of the lexicon command.
func runLexicon(p lexiconParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	e, _, err := loadEngine(p.globalParams)
	if err != nil {
		return err
	}
	lex := e.Lexicon()

	switch p.format {
	case "json":
		return report.Encode(p.stdout, lexiconJSON{
			TotalCount: lex.TotalCount(),
			Indicators: lex.Definitions(),
		})
	default:
		return report.WriteLexiconText(p.stdout, lex)
	}
}

func newLexiconCmd(g func() globalParams) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Validate and list the indicator lexicon",
		Long: `Load the lexicon named by --lexicon or the config file (or the
built-in lexicon), validate it against the scoring configuration, and
list its indicators.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLexicon(lexiconParams{globalParams: g(), format: format})
		},
	}

	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")

	return cmd
}

// ---------------------------------------------------------------------------
// schema, init
// ---------------------------------------------------------------------------

func newSchemaCmd() *cobra.Command {
	var batchSchema bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for DRI report output",
		Long: `Print the JSON Schema (Draft 2020-12) that documents the
structure of dri compare --format=json output, or with --batch of
dri batch --format=json output. Useful for validating output or
generating client types.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema := report.Schema
			if batchSchema {
				schema = report.BatchSchema
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), schema)
			return err
		},
	}

	cmd.Flags().BoolVar(&batchSchema, "batch", false,
		"print the batch report schema")

	return cmd
}

// initParams holds the parsed flags for the init command.
type initParams struct {
	targetDir string
	force     bool
	stdout    io.Writer
}

// runInit is the extracted, testable body of the init command.
func runInit(p initParams) error {
	_, err := scaffold.Run(scaffold.Options{
		TargetDir: p.targetDir,
		Force:     p.force,
		Version:   version,
		Stdout:    p.stdout,
	})
	return err
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a DRI config and lexicon",
		Long: `Write ` + config.FileName + ` and ` + scaffold.LexiconFileName + ` with the default
settings and the built-in lexicon, ready to be tuned. Existing files
are skipped unless --force is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(initParams{
				targetDir: dir,
				force:     force,
				stdout:    cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false,
		"overwrite existing files")

	return cmd
}
