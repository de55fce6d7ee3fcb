package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/spf13/cobra"
)

// rootCmd is postctl itself; its subcommands get their dependencies from
// PersistentPreRunE so --help works without a database.
var rootCmd = &cobra.Command{
	Use:           "postctl",
	Short:         "Inspect and repair scheduled publish jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	var (
		db *sql.DB
		rq *queue.RedisQueue
	)
	cli := &jobsCLI{}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			return err
		}
		if err := db.PingContext(cmd.Context()); err != nil {
			return err
		}
		rq = queue.NewRedisQueue(cfg.RedisURI)
		cli.jobs = queue.NewScheduler(repository.NewJobRepository(db), rq, cfg.JobMaxAttempts)
		cli.posts = repository.NewPostRepository(db)
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if rq != nil {
			rq.Close()
		}
		if db != nil {
			db.Close()
		}
	}

	rootCmd.AddCommand(cli.command())
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
