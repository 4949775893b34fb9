package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/analytics"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/coach"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/handler"
	appI18n "github.com/sallowayma-git/IELTS-practice-sub003/internal/i18n"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/storage"
	"github.com/sallowayma-git/IELTS-practice-sub003/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "practice",
		Short:        "IELTS practice record store and analytics",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("storage", string(storage.KindSQLite), "Storage backend (sqlite, bolt, memory)")
	pf.String("db", "practice.db", "Database file path")
	pf.Int("max-records", store.DefaultMaxRecords, "Maximum number of stored records")
	pf.Int("max-backups", store.DefaultMaxBackups, "Maximum number of retained backups")
	pf.String("timezone", "Local", "Time zone that defines calendar days (IANA name)")
	pf.StringP("lang", "l", "en", "Output language (en, zh)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	serve := serveCmd()
	root.AddCommand(
		serve,
		exportCmd(),
		importCmd(),
		backupCmd(),
		recalcCmd(),
		statsCmd(),
		analyzeCmd(),
		adviseCmd(),
	)

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP JSON API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Duration("cache-ttl", analytics.DefaultCacheTTL, "How long analysis results stay cached")
	f.Int("window", analytics.DefaultWindowDays, "Default analysis window in days")
	f.String("admin-password", "", "Password for admin routes (or set PRACTICE_ADMIN_PASSWORD)")
	addLLMFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export practice records as JSON or CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("format", "f", store.FormatJSON, "Export format (json, csv)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a JSON export (- or no argument reads stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport,
	}
	cmd.Flags().Bool("merge", false, "Merge with existing records instead of replacing them")
	return cmd
}

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage store backups",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create [label]",
			Short: "Snapshot records, stats and version",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runBackupCreate,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List backups, newest first",
			Args:  cobra.NoArgs,
			RunE:  runBackupList,
		},
		&cobra.Command{
			Use:   "restore <id>",
			Short: "Restore a backup",
			Args:  cobra.ExactArgs(1),
			RunE:  runBackupRestore,
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a backup",
			Args:  cobra.ExactArgs(1),
			RunE:  runBackupDelete,
		},
	)
	return cmd
}

func recalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Rebuild user stats from every stored record",
		Args:  cobra.NoArgs,
		RunE:  runRecalc,
	}
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show user stats and storage info",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	cmd.Flags().Bool("json", false, "Print raw JSON")
	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "analyze <basic|categories|question-types|trends|radar|progress>",
		Short:     "Run an analysis over the stored records",
		Args:      cobra.ExactArgs(1),
		ValidArgs: analysisKinds,
		RunE:      runAnalyze,
	}
	cmd.Flags().Int("window", analytics.DefaultWindowDays, "Analysis window in days")
	return cmd
}

func adviseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Ask the configured LLM for study advice",
		Args:  cobra.NoArgs,
		RunE:  runAdvise,
	}
	cmd.Flags().Int("window", analytics.DefaultWindowDays, "Analysis window in days")
	addLLMFlags(cmd.Flags())
	return cmd
}

type flagSet interface {
	String(name, value, usage string) *string
}

func addLLMFlags(f flagSet) {
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables advice)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("advice-tone", string(coach.ToneStandard), "Advice tone (concise, standard, encouraging)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PRACTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("practice")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/practice")
	v.AddConfigPath("/etc/practice")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup configures logging and returns the command's settings.
func setup(cmd *cobra.Command) *viper.Viper {
	setupLogging(cmd)
	return viperForCmd(cmd)
}

func location(v *viper.Viper) (*time.Location, error) {
	name := v.GetString("timezone")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	loc, err := location(v)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(storage.Kind(v.GetString("storage")), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	st, err := store.New(ctx, backend,
		store.WithMaxRecords(v.GetInt("max-records")),
		store.WithMaxBackups(v.GetInt("max-backups")),
		store.WithLocation(loc),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if err := st.LastMigrationError(); err != nil {
		slog.Warn("storage migration rolled back, serving previous data", "error", err)
	}
	return st, nil
}

func newEngine(v *viper.Viper) (*analytics.Engine, error) {
	loc, err := location(v)
	if err != nil {
		return nil, err
	}
	return analytics.New(
		analytics.WithCacheTTL(v.GetDuration("cache-ttl")),
		analytics.WithLocation(loc),
	), nil
}

// newCoach returns nil when no LLM endpoint is configured.
func newCoach(ctx context.Context, v *viper.Viper) (*coach.Client, error) {
	url := v.GetString("llm-url")
	if url == "" {
		return nil, nil
	}
	tone := strings.ToLower(strings.TrimSpace(v.GetString("advice-tone")))
	if !coach.IsValidTone(tone) {
		slog.Warn("invalid advice-tone, using standard", "tone", tone)
		tone = string(coach.ToneStandard)
	}
	c, err := coach.New(url, v.GetString("llm-key"), v.GetString("llm-model"), tone)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	return c, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	engine, err := newEngine(v)
	if err != nil {
		return err
	}
	defer engine.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	advisor, err := newCoach(ctx, v)
	if err != nil {
		return err
	}

	h, err := handler.New(st, engine, advisor, handler.Config{
		AdminPassword: v.GetString("admin-password"),
		WindowDays:    v.GetInt("window"),
		Lang:          lang,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"storage", v.GetString("storage"),
		"db", v.GetString("db"),
		"lang", lang,
		"cache_ttl", v.GetDuration("cache-ttl"),
		"advice", advisor != nil,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)
	ctx := context.Background()

	st, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	data, err := st.ExportData(ctx, v.GetString("format"))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if v.GetString("format") != store.FormatCSV {
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	v := setup(cmd)
	ctx := context.Background()

	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read import data: %w", err)
	}

	st, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	result, err := st.ImportData(ctx, data, store.ImportOptions{Merge: v.GetBool("merge")})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st *store.Store) error {
		label := ""
		if len(args) == 1 {
			label = args[0]
		}
		id, err := st.CreateBackup(ctx, label)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	})
}

func runBackupList(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(ctx context.Context, st *store.Store) error {
		backups, err := st.ListBackups(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, b := range backups {
			fmt.Fprintf(out, "%s\t%s\t%s\n", b.ID, b.Timestamp.Format(time.RFC3339), b.Data.StorageVersion)
		}
		return nil
	})
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st *store.Store) error {
		b, err := st.RestoreBackup(ctx, args[0])
		if err != nil {
			return err
		}
		slog.Info("restored backup", "id", b.ID, "taken", b.Timestamp)
		return nil
	})
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st *store.Store) error {
		return st.DeleteBackup(ctx, args[0])
	})
}

func runRecalc(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(ctx context.Context, st *store.Store) error {
		stats, err := st.RecalculateUserStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)
	ctx := context.Background()

	st, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	stats, err := st.GetUserStats(ctx)
	if err != nil {
		return err
	}
	if v.GetBool("json") {
		return printJSON(cmd.OutOrStdout(), stats)
	}
	info, err := st.StorageInfo(ctx)
	if err != nil {
		return err
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(appI18n.Match(lang)))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, appI18n.T(ctx, "AppTitle"))
	fmt.Fprintln(out, appI18n.Tp(ctx, "PracticesRecorded", stats.TotalPractices))
	fmt.Fprintln(out, appI18n.Td(ctx, "AverageAccuracy", map[string]any{
		"Percent": fmt.Sprintf("%.1f", stats.AverageScore*100),
	}))
	fmt.Fprintln(out, appI18n.Td(ctx, "StreakSummary", map[string]any{
		"Current": stats.StreakDays,
		"Longest": stats.LongestStreak,
	}))
	if len(stats.Achievements) > 0 {
		fmt.Fprintln(out, strings.Join(stats.Achievements, ", "))
	}
	fmt.Fprintf(out, "records=%d backups=%d version=%s size=%dB\n",
		info.TotalRecords, info.TotalBackups, info.StorageVersion, info.EstimatedSize)
	return nil
}

var analysisKinds = []string{"basic", "categories", "question-types", "trends", "radar", "progress"}

func runAnalyze(cmd *cobra.Command, args []string) error {
	v := setup(cmd)
	ctx := context.Background()

	st, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	engine, err := newEngine(v)
	if err != nil {
		return err
	}
	defer engine.Close()

	records, err := st.GetRecords(ctx, model.RecordFilter{})
	if err != nil {
		return err
	}
	slices.Reverse(records)
	window := v.GetInt("window")

	var result any
	switch args[0] {
	case "basic":
		result = engine.CalculateBasicStats(records)
	case "categories":
		result = engine.AnalyzeCategoryPerformance(records)
	case "question-types":
		result = engine.AnalyzeQuestionTypePerformance(records)
	case "trends":
		result = engine.AnalyzeLearningTrends(records, window)
	case "radar":
		result = engine.GenerateRadarChartData(records)
	case "progress":
		result = engine.GenerateProgressCurveData(records, window)
	default:
		return fmt.Errorf("unknown analysis %q (want one of %s)", args[0], strings.Join(analysisKinds, ", "))
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runAdvise(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)
	ctx := context.Background()

	advisor, err := newCoach(ctx, v)
	if err != nil {
		return err
	}
	if advisor == nil {
		return errors.New("advice needs an LLM endpoint: set --llm-url or PRACTICE_LLM_URL")
	}

	st, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	engine, err := newEngine(v)
	if err != nil {
		return err
	}
	defer engine.Close()

	records, err := st.GetRecords(ctx, model.RecordFilter{})
	if err != nil {
		return err
	}
	slices.Reverse(records)
	stats, err := st.GetUserStats(ctx)
	if err != nil {
		return err
	}

	summary := coach.Summarize(engine, records, stats, v.GetInt("window"), appI18n.Match(v.GetString("lang")))
	advice, err := advisor.Advise(ctx, summary)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), advice)
}

// withStore opens the store for a command that needs nothing else.
func withStore(cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	v := setup(cmd)
	ctx := context.Background()

	st, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(ctx, st)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
