package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/eval-consensus/internal/adapters"
	"github.com/ZanzyTHEbar/eval-consensus/internal/analysis"
	"github.com/ZanzyTHEbar/eval-consensus/internal/database"
	"github.com/ZanzyTHEbar/eval-consensus/internal/errors"
	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/extraction"
	"github.com/ZanzyTHEbar/eval-consensus/internal/monitoring"
	"github.com/ZanzyTHEbar/eval-consensus/internal/resilience"
	"github.com/ZanzyTHEbar/eval-consensus/internal/security"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func corpusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "read evaluations from a JSON export", EnvVars: []string{"CORPUS_FILE"}},
		&cli.StringFlag{Name: "url", Usage: "fetch evaluations from an HTTP export", EnvVars: []string{"CORPUS_URL"}},
		&cli.StringFlag{Name: "token", Usage: "bearer token for --url", EnvVars: []string{"CORPUS_TOKEN"}},
		&cli.StringFlag{Name: "data-dir", Usage: "read evaluations imported into this data directory", EnvVars: []string{"DATA_DIR"}},
		&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "remote fetch timeout"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "feedbackctl",
		Usage: "analyze evaluator agreement over structured feedback",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schema", Usage: "YAML extraction schema", EnvVars: []string{"SCHEMA_PATH"}},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error", EnvVars: []string{"LOG_LEVEL"}},
			&cli.BoolFlag{Name: "pretty", Usage: "indent JSON output"},
		},
		Before: func(c *cli.Context) error {
			monitoring.NewLoggerTo(c.App.ErrWriter, c.String("log-level"), "text").Install()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "analyze",
				Usage:  "run every reliability analysis and print the report",
				Flags:  corpusFlags(),
				Action: runAnalyze,
			},
			{
				Name:   "papers",
				Usage:  "list papers reviewed by more than one evaluator",
				Flags:  corpusFlags(),
				Action: runPapers,
			},
			{
				Name:      "sentiment",
				Usage:     "score free text against the sentiment lexicon",
				ArgsUsage: "TEXT...",
				Action:    runSentiment,
			},
			{
				Name:  "expertise",
				Usage: "classify a self-reported evaluator profile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role"},
					&cli.StringFlag{Name: "domain", Usage: "domain expertise level"},
					&cli.StringFlag{Name: "experience", Usage: "evaluation experience"},
					&cli.Float64Flag{Name: "weight", Usage: "explicit expertise weight, overrides role and domain"},
				},
				Action: runExpertise,
			},
			{
				Name:      "import",
				Usage:     "import a JSON export into the local evaluation store",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data-dir", Value: "./data", EnvVars: []string{"DATA_DIR"}},
				},
				Action: runImport,
			},
		},
	}
}

func newExtractor(c *cli.Context) (*extraction.Extractor, error) {
	schema := extraction.DefaultSchema()
	if path := c.String("schema"); path != "" {
		loaded, err := extraction.LoadSchema(path)
		if err != nil {
			return nil, errors.NewConfigurationError("invalid --schema", err)
		}
		schema = loaded
	}
	return extraction.NewExtractor(schema)
}

// loadCorpus reads evaluations from the one source the flags name
func loadCorpus(c *cli.Context, extractor *extraction.Extractor) (string, []types.Evaluation, error) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	set := 0
	for _, name := range []string{"file", "url", "data-dir"} {
		if c.String(name) != "" {
			set++
		}
	}
	if set != 1 {
		return "", nil, errors.NewValidationError("exactly one of --file, --url or --data-dir is required")
	}

	switch {
	case c.String("file") != "":
		data, err := os.ReadFile(c.String("file"))
		if err != nil {
			return "", nil, errors.NewIngestionError("file", err)
		}
		evals, err := types.DecodeEvaluations(data)
		if err != nil {
			return "", nil, errors.NewIngestionError("file", err)
		}
		return "file", evals, nil

	case c.String("url") != "":
		remote := adapters.NewRemoteSource(adapters.RemoteConfig{
			URL:     c.String("url"),
			Token:   c.String("token"),
			Timeout: c.Duration("timeout"),
			Retry:   resilience.StandardRetryPolicy.Config,
		})
		evals, err := remote.Load(ctx)
		return adapters.RemoteSourceName, evals, err

	default:
		db, err := database.NewDB(c.String("data-dir"))
		if err != nil {
			return "", nil, err
		}
		defer errors.SafeClose(db, "database")

		evals, err := newRepository(db, extractor).ListEvaluations(ctx)
		return "store", evals, err
	}
}

func newRepository(db *database.DB, extractor *extraction.Extractor) *database.Repository {
	return database.NewRepository(db, func(ev types.Evaluation) string {
		return extractor.Describe(ev).Token
	})
}

func runAnalyze(c *cli.Context) error {
	extractor, err := newExtractor(c)
	if err != nil {
		return err
	}
	source, evals, err := loadCorpus(c, extractor)
	if err != nil {
		return err
	}

	report := analysis.NewAnalyzer(extractor).Analyze(evals)
	slog.Info("Analysis completed", "source", source, "evaluations", len(evals), "kappa_sufficient", report.Kappa.Sufficient)
	return writeJSON(c, report)
}

func runPapers(c *cli.Context) error {
	extractor, err := newExtractor(c)
	if err != nil {
		return err
	}
	source, evals, err := loadCorpus(c, extractor)
	if err != nil {
		return err
	}

	resolved, _ := analysis.NewAnalyzer(extractor).Resolve(evals)
	type paper struct {
		Key        string   `json:"key"`
		Title      string   `json:"title"`
		Evaluators []string `json:"evaluators"`
		Comments   int      `json:"comments"`
	}
	multi := make([]paper, 0, len(resolved.MultiEvaluatorPapers))
	for _, g := range resolved.MultiEvaluatorPapers {
		multi = append(multi, paper{Key: g.Key, Title: g.Title, Evaluators: g.Evaluators, Comments: len(g.Comments)})
	}

	return writeJSON(c, map[string]interface{}{
		"source":               source,
		"counts":               resolved.Counts,
		"multiEvaluatorPapers": multi,
	})
}

func runSentiment(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.NewValidationError("sentiment needs the text to score")
	}
	text := strings.Join(c.Args().Slice(), " ")
	if err := security.ValidateText(text, security.MaxTextBytes); err != nil {
		return errors.NewValidationError("invalid text", err.Error())
	}
	result := sentiment.Analyze(text)
	return writeJSON(c, map[string]interface{}{
		"result":   result,
		"polarity": result.Polarity(),
	})
}

func runExpertise(c *cli.Context) error {
	profile := &expertise.Profile{
		Role:                 c.String("role"),
		DomainExpertise:      c.String("domain"),
		EvaluationExperience: c.String("experience"),
	}
	if c.IsSet("weight") {
		w := c.Float64("weight")
		profile.Weight = &w
	}
	return writeJSON(c, expertise.Classify(profile))
}

func runImport(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.NewValidationError("import needs exactly one FILE")
	}
	path := c.Args().First()

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewIngestionError("file", err)
	}
	evals, err := types.DecodeEvaluations(data)
	if err != nil {
		return errors.NewValidationError("invalid evaluations payload", err.Error())
	}

	extractor, err := newExtractor(c)
	if err != nil {
		return err
	}
	db, err := database.NewDB(c.String("data-dir"))
	if err != nil {
		return err
	}
	defer errors.SafeClose(db, "database")

	batch, err := newRepository(db, extractor).ImportEvaluations(c.Context, path, evals)
	if err != nil {
		return err
	}
	return writeJSON(c, batch)
}

func writeJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	if c.Bool("pretty") {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
