package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/devtrack/internal/api"
	"github.com/erazemk/devtrack/internal/db"
	"github.com/erazemk/devtrack/internal/events"
	"github.com/erazemk/devtrack/internal/lifecycle"
	"github.com/erazemk/devtrack/internal/model"
	"github.com/erazemk/devtrack/internal/store"
)

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := configFlag(fs)
	overrides := map[string]*string{
		"db":    stringFlag(fs, "db", "d"),
		"addr":  stringFlag(fs, "addr", "a"),
		"user":  stringFlag(fs, "user", "u"),
		"log":   stringFlag(fs, "log", "l"),
		"level": stringFlag(fs, "level", ""),
	}

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: devtrack serve [flags]

Flags:
  -c, -config <path>      YAML config file (default: none, built-in defaults)
  -d, -db <path>          SQLite database path (default: devtrack.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
      -level <level>      debug, info, warn or error (default: info)
  -h, -help               show this help and exit

Every setting can also come from DEVTRACK_* environment variables.
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := loadConfig(*configPath, overrides)
	if err != nil {
		return err
	}

	level, _ := cfg.SlogLevel()
	closeLog, err := setupLogger(cfg.Log.Path, level)
	if err != nil {
		return err
	}
	defer closeLog()

	dbPath := cfg.Database.Path

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		database, password, err := initDatabase(dbPath, cfg.Admin.Username)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(dbPath, cfg.Admin.Username, password)
		fmt.Println()
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	slog.Info("database ready", "path", dbPath)

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	publishers := events.Multi{bus}
	if cfg.Redis.Addr != "" {
		redisPub := events.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Channel)
		defer redisPub.Close()

		pingCtx, cancel := context.WithTimeout(ctx, events.DefaultRedisTimeout)
		if err := redisPub.Ping(pingCtx); err != nil {
			slog.Warn("redis unreachable, events will be retried per publish", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()

		publishers = append(publishers, redisPub)
		slog.Info("forwarding events to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	engine := lifecycle.New(store.NewSQLStore(database), publishers,
		lifecycle.WithLogger(slog.Default().With("component", "lifecycle")),
		lifecycle.WithOverdueAfter(cfg.OverdueAfter()),
	)

	hub := api.NewHub(bus)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	router := api.NewRouter(api.Config{
		DB:               database,
		JWTSecret:        jwtSecret,
		Engine:           engine,
		Reconciler:       lifecycle.NewReconciler(engine),
		Hub:              hub,
		ApprovalRequired: cfg.Assignments.ApprovalRequired,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr,
		"approval_required", cfg.Assignments.ApprovalRequired, "overdue_after", cfg.OverdueAfter())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	stop()
	<-hubDone
	slog.Info("server stopped, closing database")
	return nil
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.Migrate(database); err != nil {
		return fail(err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	if _, err := store.CreateUser(context.Background(), database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
