package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/exam"
	"github.com/pavelanni/examhall/internal/handler"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/notify"
	"github.com/pavelanni/examhall/internal/report"
	"github.com/pavelanni/examhall/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examhall",
		Short: "Timed multiple-choice exams for college cohorts",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examhall --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "examhall.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("jwt-secret", "", "HMAC secret for bearer tokens (or set EXAMHALL_JWT_SECRET)")
	f.Duration("token-ttl", 12*time.Hour, "Bearer token lifetime")
	f.Duration("sweep-interval", 30*time.Second, "How often expired exams are closed")
	f.StringP("lang", "l", "en", "Default language for messages (en, te)")
	f.String("sms-gateway-url", "", "SMS gateway endpoint (empty logs messages instead)")
	f.String("sms-country-code", "+91", "Country code for parent phone numbers without one")
	f.Int("notify-queue", 256, "Result notifications buffered before new ones are dropped")
	f.String("admin-password", "", "Initial admin password (or set EXAMHALL_ADMIN_PASSWORD)")
	addCommonFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export results or archived papers",
	}

	results := &cobra.Command{
		Use:   "results",
		Short: "Export the results ledger",
		RunE:  runExportResults,
	}
	f := results.Flags()
	f.String("year", "", "Filter by year")
	f.String("branch", "", "Filter by branch")
	f.String("section", "", "Filter by section")
	f.String("date", "", "Filter by exam date (YYYY-MM-DD)")
	f.Int64("exam-id", 0, "Filter by exam")
	f.String("format", "json", "Output format (json, csv)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(results)

	archive := &cobra.Command{
		Use:   "archive",
		Short: "Export the archived paper of a closed exam",
		RunE:  runExportArchive,
	}
	f = archive.Flags()
	f.Int64("exam-id", 0, "Exam to export (required)")
	f.String("format", "json", "Output format (json, csv)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(archive)
	_ = archive.MarkFlagRequired("exam-id")

	cmd.AddCommand(results, archive)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import rosters or question sets from JSON files",
	}

	roster := &cobra.Command{
		Use:   "roster FILE",
		Short: "Import the students of one cohort",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportRoster,
	}
	f := roster.Flags()
	f.String("year", "", "Cohort year (required)")
	f.String("branch", "", "Cohort branch (required)")
	f.String("section", "", "Cohort section (empty if the branch has none)")
	addCommonFlags(roster)
	_ = roster.MarkFlagRequired("year")
	_ = roster.MarkFlagRequired("branch")

	questions := &cobra.Command{
		Use:   "questions FILE",
		Short: "Replace the questions of a DRAFT or CLOSED exam",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportQuestions,
	}
	f = questions.Flags()
	f.Int64("exam-id", 0, "Exam to load questions into (required)")
	f.Bool("force", false, "Import even if the file was imported before")
	addCommonFlags(questions)
	_ = questions.MarkFlagRequired("exam-id")

	cmd.AddCommand(roster, questions)
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

	v.SetEnvPrefix("EXAMHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examhall")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examhall")
	v.AddConfigPath("/etc/examhall")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// serveConfig reads the server settings from flags, environment and config file.
func serveConfig(v *viper.Viper) (model.Config, error) {
	cfg := model.Config{
		SweepInterval: v.GetDuration("sweep-interval"),
		TokenTTL:      v.GetDuration("token-ttl"),
		JWTSecret:     v.GetString("jwt-secret"),
		Lang:          v.GetString("lang"),
		CountryCode:   v.GetString("sms-country-code"),
		SMSGatewayURL: strings.TrimSpace(v.GetString("sms-gateway-url")),
		NotifyQueue:   v.GetInt("notify-queue"),
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("jwt secret is required: set --jwt-secret flag or EXAMHALL_JWT_SECRET env var")
	}
	if cfg.SweepInterval <= 0 {
		return cfg, fmt.Errorf("sweep interval must be positive, got %s", cfg.SweepInterval)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := serveConfig(v)
	if err != nil {
		return err
	}
	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	var sink notify.Sink = notify.LogSink{}
	if cfg.SMSGatewayURL != "" {
		sink = notify.NewHTTPSink(cfg.SMSGatewayURL, &http.Client{Timeout: 15 * time.Second})
	}
	dispatcher := notify.NewDispatcher(sink, notify.Config{
		Lang:        cfg.Lang,
		CountryCode: cfg.CountryCode,
		QueueSize:   cfg.NotifyQueue,
	})

	svc := exam.New(db, exam.WithPublisher(dispatcher))
	closer, err := exam.NewAutoCloser(svc, cfg.SweepInterval)
	if err != nil {
		return fmt.Errorf("create auto-closer: %w", err)
	}
	closer.Start()

	tokens, err := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("create token service: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(cfg.Lang))
	handler.New(svc, db, tokens).Routes(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"lang", cfg.Lang,
			"sweep_interval", cfg.SweepInterval,
			"token_ttl", cfg.TokenTTL,
			"sms_gateway", cfg.SMSGatewayURL != "",
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			stopBackground(closer, dispatcher)
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	stopBackground(closer, dispatcher)
	return nil
}

// stopBackground stops the auto-closer and drains pending notifications.
func stopBackground(closer *exam.AutoCloser, dispatcher *notify.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closer.Stop(ctx)
	if err := dispatcher.Close(ctx); err != nil {
		slog.Warn("notifications not drained", "error", err)
	}
}

// openOutput returns stdout for "" or "-", otherwise a created file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func runExportResults(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	format, err := report.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	filter := model.LedgerFilter{
		Year:     v.GetString("year"),
		Branch:   v.GetString("branch"),
		Section:  v.GetString("section"),
		ExamDate: v.GetString("date"),
		ExamID:   v.GetInt64("exam-id"),
	}
	exp, err := db.ExportResults(cmd.Context(), filter, time.Now())
	if err != nil {
		return err
	}

	w, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer w.Close()
	if err := report.Results(w, format, exp); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	slog.Info("exported results", "count", exp.Count, "format", format)
	return nil
}

func runExportArchive(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	format, err := report.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	a, err := db.GetArchive(cmd.Context(), v.GetInt64("exam-id"))
	if err != nil {
		return err
	}
	w, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer w.Close()
	if err := report.Archive(w, format, a); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

func runImportRoster(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var rows []model.RosterRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cohort := model.Cohort{Year: v.GetString("year"), Branch: v.GetString("branch"), Section: v.GetString("section")}
	n, err := exam.New(db).ImportRoster(cmd.Context(), model.SystemPrincipal, cohort, rows)
	if err != nil {
		return err
	}
	slog.Info("imported roster", "path", args[0], "cohort", cohort.Normalize().String(), "count", n)
	return nil
}

func runImportQuestions(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := loadQuestions(cmd.Context(), db, args[0], v.GetInt64("exam-id"), v.GetBool("force"))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("imported questions", "path", args[0], "count", n)
	}
	return nil
}

// loadQuestions imports a question file into an exam on behalf of its owner.
// A file already imported with the same content is skipped unless force is set.
func loadQuestions(ctx context.Context, db *store.Store, path string, examID int64, force bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	key := fmt.Sprintf("%s#%d", path, examID)
	hash := sha256sum(data)
	storedHash, err := db.ImportedFileHash(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash && !force {
		slog.Info("questions file unchanged, skipping", "path", path, "exam_id", examID)
		return 0, nil
	}

	var rows []model.QuestionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	e, err := db.GetExam(ctx, examID)
	if err != nil {
		return 0, err
	}
	owner := model.Principal{Subject: e.Owner, Role: model.UserRoleFaculty}
	n, err := exam.New(db).ImportQuestions(ctx, owner, examID, rows)
	if err != nil {
		return 0, err
	}

	if err := db.SetImportedFileHash(ctx, key, hash); err != nil {
		return 0, fmt.Errorf("record import for %s: %w", path, err)
	}
	return n, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMHALL_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
