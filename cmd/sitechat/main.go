package main

// @title           Sitechat API
// @version         1.0
// @description     Website ingestion and retrieval-augmented question answering.

// @contact.name   Sitechat OSS
// @contact.url    https://github.com/custodia-labs/sitechat/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sitechat",
	Short: "Website ingestion and question answering service",
	Long: `sitechat crawls websites, embeds their pages into PostgreSQL and
answers questions about them with a language model.

Without a subcommand the mode is taken from RUN_MODE (default: all).`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode := getEnv("RUN_MODE", "all")
		for _, sub := range cmd.Commands() {
			if sub.Name() == mode && sub.RunE != nil {
				sub.SetContext(cmd.Context())
				return sub.RunE(sub, nil)
			}
		}
		return cmd.Help()
	},
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API only",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), runAPIMode)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process ingestion tasks and run the scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), runWorkerMode)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the HTTP API and the worker in one process",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			go func() {
				if err := runWorkerMode(ctx, a); err != nil {
					log.Printf("Worker error: %v", err)
				}
			}()
			return runAPIMode(ctx, a)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			return err
		}
		log.Println("Schema up to date")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("sitechat version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(apiCmd, workerCmd, allCmd, migrateCmd, versionCmd)
}

func main() {
	// A missing .env is fine; the environment may already be set
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	// Cancel on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("sitechat: %v", err)
	}
}

// run builds the application, hands it to fn and tears it down afterwards.
func run(ctx context.Context, fn func(context.Context, *app) error) error {
	log.Printf("sitechat %s starting", version)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
