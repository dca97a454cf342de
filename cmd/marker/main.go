package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/marker/internal/agent"
	"github.com/pavelanni/marker/internal/document"
	"github.com/pavelanni/marker/internal/handler"
	"github.com/pavelanni/marker/internal/llm"
	"github.com/pavelanni/marker/internal/pipeline"
	"github.com/pavelanni/marker/internal/progress"
	"github.com/pavelanni/marker/internal/qa"
	"github.com/pavelanni/marker/internal/service"
	"github.com/pavelanni/marker/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marker",
		Short: "Answer sheet marking service powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, uploadCmd(), markCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `marker --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "marker.db", "SQLite database path")
	f.String("llm-provider", "ollama", "LLM provider (openai, ollama, together, anthropic, mock)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Int("max-concurrent", 3, "Maximum concurrent answer evaluations")
	f.Float64("qa-low-confidence", 0.6, "Confidence below which an evaluation is flagged")
	f.Float64("qa-issue-penalty", 0.2, "Consistency penalty per scoring issue")
	f.Float64("qa-flag-penalty", 0.05, "Consistency penalty per review flag")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP marking server",
		RunE:  runServe,
	}
	cmd.Flags().StringP("addr", "a", ":8080", "HTTP listen address")
	addCommonFlags(cmd)
	return cmd
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload and analyze a marking guide",
		RunE:  runUpload,
	}
	cmd.Flags().StringP("guide", "g", "", "Path to the marking guide JSON file (required)")
	addCommonFlags(cmd)
	_ = cmd.MarkFlagRequired("guide")
	return cmd
}

func markCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark one answer sheet against a stored guide",
		RunE:  runMark,
	}
	f := cmd.Flags()
	f.String("guide-id", "", "Stored guide identifier (required)")
	f.StringP("student", "s", "", "Student identifier (required)")
	f.StringP("answers", "f", "", "Path to the answer sheet JSON file (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(cmd)
	_ = cmd.MarkFlagRequired("guide-id")
	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all stored reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "marker.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
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

	v.SetEnvPrefix("MARKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("marker")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/marker")
	v.AddConfigPath("/etc/marker")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// buildService assembles the full marking stack from configuration.
func buildService(v *viper.Viper) (*service.Service, *store.Store, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	base, err := llm.New(llm.Config{
		Provider: v.GetString("llm-provider"),
		Model:    v.GetString("llm-model"),
		APIKey:   v.GetString("llm-key"),
		BaseURL:  v.GetString("llm-url"),
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create LLM client: %w", err)
	}
	client := llm.NewMeter(base)
	if err := client.Ping(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK",
		"provider", v.GetString("llm-provider"), "model", v.GetString("llm-model"))

	qaCfg := qa.DefaultConfig()
	qaCfg.LowConfidence = v.GetFloat64("qa-low-confidence")
	qaCfg.IssuePenalty = v.GetFloat64("qa-issue-penalty")
	qaCfg.FlagPenalty = v.GetFloat64("qa-flag-penalty")

	tracker := progress.NewTracker()
	orch := pipeline.New(
		agent.NewEvaluator(client),
		agent.NewFeedback(client),
		qa.New(qaCfg),
		pipeline.WithNotifier(tracker),
		pipeline.WithMaxConcurrent(v.GetInt("max-concurrent")),
	)

	svc, err := service.New(db, document.PlainText{}, agent.NewAnalyzer(client), orch, tracker,
		service.WithUsageMeter(client))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create service: %w", err)
	}
	return svc, db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, db, err := buildService(v)
	if err != nil {
		return err
	}
	defer db.Close()

	h := handler.New(svc)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"provider", v.GetString("llm-provider"),
		"model", v.GetString("llm-model"),
		"max_concurrent", v.GetInt("max-concurrent"),
	)
	return http.ListenAndServe(addr, r)
}

func runUpload(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, db, err := buildService(v)
	if err != nil {
		return err
	}
	defer db.Close()

	path := v.GetString("guide")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	id, guide, cached, err := svc.UploadGuide(cmd.Context(), data, path, "")
	if err != nil {
		return fmt.Errorf("upload guide: %w", err)
	}
	if cached {
		slog.Info("guide already stored", "guide", id)
	}
	fmt.Printf("%s\t%s\t%d questions\t%.1f marks\n", id, guide.Title, len(guide.Questions), guide.TotalMarks)
	return nil
}

func runMark(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	svc, db, err := buildService(v)
	if err != nil {
		return err
	}
	defer db.Close()

	path := v.GetString("answers")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	id, report, cached, err := svc.MarkAnswerSheet(cmd.Context(), v.GetString("guide-id"), v.GetString("student"), data, "")
	if err != nil {
		return fmt.Errorf("mark answer sheet: %w", err)
	}
	if cached {
		slog.Info("served from cache", "report", id)
	}

	w, closeFn, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeFn()

	if err := report.WriteJSON(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	_, reports, err := db.LoadAll()
	if err != nil {
		return fmt.Errorf("load reports: %w", err)
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	w, closeFn, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
