package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lifedash/internal/app"
	"lifedash/internal/domain/inbox"
	"lifedash/internal/domain/studysync"
	"lifedash/internal/domain/syncjob"
	"lifedash/internal/infrastructure/postgres"
	"lifedash/internal/shared/config"
)

const usage = `LifeDash Admin CLI - Management commands for the LifeDash API

Usage:
  admin <command> [options]

Commands:
  migrate           Apply the Postgres sync state migrations
  sync              Run a full provider sync now
  push              Run a push-only study planner sync now
  drain-inbox       Process pending inbox items
  logs              Print the newest sync log entries of a user
  token             Issue an API token for a user
  set-credentials   Store study planner credentials for a user

Examples:
  # Sync one user and wait for the result
  admin sync --user-id=abc123

  # Sync every connected user, four at a time
  admin sync --all --workers=4

  # Drain the inbox of a single user
  admin drain-inbox --user-id=abc123

  # Connect a user to the study planner
  admin set-credentials --user-id=abc123 --email=me@example.com --token=s3cret
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage, "\n")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "migrate":
		runMigrate(os.Args[2:])
	case "sync":
		runSync(os.Args[2:])
	case "push":
		runPush(os.Args[2:])
	case "drain-inbox":
		runDrainInbox(os.Args[2:])
	case "logs":
		runLogs(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	case "set-credentials":
		runSetCredentials(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage, "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage, "\n")
		os.Exit(1)
	}
}

// loadDependencies loads the configuration and wires the stores it selects.
func loadDependencies(ctx context.Context) *app.Dependencies {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Stores.Backend == config.BackendMemory || cfg.Stores.SyncStateBackend == config.BackendMemory {
		log.Println("Warning: memory stores are private to this process; changes will not reach the API server")
	}

	deps, err := app.NewDependencies(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	return deps
}

func parseTimeout(s string) time.Duration {
	timeout, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}
	return timeout
}

func requireFlag(fs *flag.FlagSet, name, value string) {
	if value == "" {
		fmt.Printf("Error: --%s is required\n", name)
		fs.Usage()
		os.Exit(1)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.URL, postgres.PoolConfig{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied")
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	userIDs := fs.String("user-id", "", "User ID(s) to sync (comma-separated for multiple)")
	provider := fs.String("provider", studysync.Provider, "Provider to sync")
	allUsers := fs.Bool("all", false, "Sync every user with credentials for the provider")
	workers := fs.Int("workers", 4, "Number of concurrent syncs")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin sync [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *userIDs == "" && !*allUsers {
		fmt.Println("Error: must specify --user-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout(*timeoutStr))
	defer cancel()

	deps := loadDependencies(ctx)
	defer deps.Close()

	if !deps.Dispatcher.Supports(*provider) {
		log.Fatalf("Unknown provider %q", *provider)
	}

	users := splitUsers(*userIDs)
	if *allUsers {
		var err error
		if users, err = deps.SyncUsers(ctx, *provider); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("Found %d users with %s credentials", len(users), *provider)
	}
	if len(users) == 0 {
		log.Println("No users to process")
		return
	}

	log.Printf("Starting sync for %d user(s) with %d workers", len(users), *workers)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	results := make([]*syncjob.Job, len(users))
	for i, userID := range users {
		g.Go(func() error {
			job, err := deps.Dispatcher.RunNow(gctx, userID, *provider, syncjob.ReasonManual)
			var inProgress *syncjob.InProgressError
			switch {
			case errors.As(err, &inProgress):
				log.Printf("User %s: sync already running (job %s), skipping", userID, inProgress.JobID)
				return nil
			case job == nil && err != nil:
				return fmt.Errorf("user %s: %w", userID, err)
			}
			// Run errors are recorded on the job itself.
			if latest, getErr := deps.Jobs.Get(context.WithoutCancel(gctx), userID, job.ID); getErr == nil {
				job = latest
			}
			results[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Sync failed: %v", err)
	}

	for i, job := range results {
		if job != nil {
			printJob(users[i], job)
		}
	}
	log.Printf("Sync completed in %v", time.Since(startTime))
}

func runPush(args []string) {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	userID := fs.String("user-id", "", "User ID to push for")
	timeoutStr := fs.String("timeout", "5m", "Timeout for the operation")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	requireFlag(fs, "user-id", *userID)

	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout(*timeoutStr))
	defer cancel()

	deps := loadDependencies(ctx)
	defer deps.Close()

	deps.StudyPlanner.PushOnly(ctx, *userID)
	log.Printf("Push finished for user %s; see `admin logs --user-id=%s` for the outcome", *userID, *userID)
}

func runDrainInbox(args []string) {
	fs := flag.NewFlagSet("drain-inbox", flag.ExitOnError)
	userID := fs.String("user-id", "", "Only drain this user's items")
	provider := fs.String("provider", "", "Only drain items of this provider")
	timeoutStr := fs.String("timeout", "10m", "Timeout for the operation")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout(*timeoutStr))
	defer cancel()

	deps := loadDependencies(ctx)
	defer deps.Close()

	res, err := deps.Consumer.Drain(ctx, inbox.ClaimFilter{UserID: *userID, Provider: *provider})
	if err != nil {
		log.Fatalf("Drain failed: %v", err)
	}
	fmt.Printf("  Claimed:   %d\n", res.Claimed)
	fmt.Printf("  Processed: %d\n", res.Processed)
	fmt.Printf("  Failed:    %d\n", res.Failed)
}

func runLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	userID := fs.String("user-id", "", "User ID")
	provider := fs.String("provider", studysync.Provider, "Provider")
	limit := fs.Int("limit", 20, "Number of entries")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	requireFlag(fs, "user-id", *userID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deps := loadDependencies(ctx)
	defer deps.Close()

	entries, err := deps.Logs.Recent(ctx, *userID, *provider, *limit)
	if err != nil {
		log.Fatalf("Failed to read logs: %v", err)
	}
	for _, e := range entries {
		fmt.Printf("%s  %-5s  %s\n", e.CreatedAt.Format(time.RFC3339), strings.ToUpper(string(e.Level)), e.Message)
	}
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user-id", "", "User ID")
	email := fs.String("email", "", "Email claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	requireFlag(fs, "user-id", *userID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deps := loadDependencies(ctx)
	defer deps.Close()

	token, err := deps.JWT.GenerateWithTTL(*userID, *email, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func runSetCredentials(args []string) {
	fs := flag.NewFlagSet("set-credentials", flag.ExitOnError)
	userID := fs.String("user-id", "", "User ID")
	email := fs.String("email", "", "Study planner account email")
	token := fs.String("token", "", "Study planner sync token")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	requireFlag(fs, "user-id", *userID)
	requireFlag(fs, "email", *email)
	requireFlag(fs, "token", *token)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deps := loadDependencies(ctx)
	defer deps.Close()

	if err := deps.Credentials.Save(ctx, *userID, studysync.Provider, *email, *token); err != nil {
		log.Fatalf("Failed to save credentials: %v", err)
	}
	log.Printf("Stored study planner credentials for user %s", *userID)
}

func splitUsers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJob(userID string, job *syncjob.Job) {
	fmt.Printf("\n=== User %s ===\n", userID)
	fmt.Printf("  Job:     %s\n", job.ID)
	fmt.Printf("  Status:  %s\n", job.Status)
	if job.Summary != nil {
		fmt.Printf("  Summary: %s\n", *job.Summary)
	}
	if job.Error != nil {
		fmt.Printf("  Error:   %s\n", *job.Error)
	}
}
