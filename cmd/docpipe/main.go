// docpipe is the operator CLI: inspect job records, export a user's jobs to
// XLSX, and read queue depth.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/docpipe/docpipe/internal/common"
	"github.com/docpipe/docpipe/internal/export"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "path to an env file",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "docpipe",
		Usage: "document processing pipeline operator tools",
		Commands: []*cli.Command{
			{
				Name:  "job",
				Usage: "inspect job records",
				Commands: []*cli.Command{
					{
						Name:  "get",
						Usage: "print one job record as JSON",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "id", Usage: "job id", Required: true},
						},
						Action: jobGetAction,
					},
					{
						Name:  "list",
						Usage: "list a user's jobs, newest first",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "user", Usage: "user id", Required: true},
							&cli.IntFlag{Name: "limit", Usage: "max rows", Value: 50},
						},
						Action: jobListAction,
					},
				},
			},
			{
				Name:  "export",
				Usage: "write a user's jobs to an XLSX report",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{Name: "user", Usage: "user id", Required: true},
					&cli.StringFlag{Name: "out", Usage: "output file", Value: "jobs.xlsx"},
					&cli.IntFlag{Name: "limit", Usage: "max rows", Value: 1000},
				},
				Action: exportAction,
			},
			{
				Name:  "queue",
				Usage: "work queue tools",
				Commands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "print ready and in-flight message counts",
						Flags:  []cli.Flag{envFlag},
						Action: queueStatsAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openPool loads configuration from the env file and connects to the
// database. The caller must Close the returned pool.
func openPool(ctx context.Context, cmd *cli.Command) (*common.Config, *pgxpool.Pool, error) {
	_ = godotenv.Load(cmd.String("env"))
	cfg := common.Load()
	if cfg.Database.DSN == "" {
		return nil, nil, fmt.Errorf("DB_URL is required")
	}
	pool, err := repository.Open(ctx, cfg.Database, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func jobGetAction(ctx context.Context, cmd *cli.Command) error {
	jobID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	_, pool, err := openPool(ctx, cmd)
	if err != nil {
		return err
	}
	defer pool.Close()

	jobs := repository.NewJobRepository(pool, slog.Default())
	job, err := jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

func jobListAction(ctx context.Context, cmd *cli.Command) error {
	_, pool, err := openPool(ctx, cmd)
	if err != nil {
		return err
	}
	defer pool.Close()

	jobs := repository.NewJobRepository(pool, slog.Default())
	list, err := jobs.ListByUser(ctx, cmd.String("user"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	for _, j := range list {
		fmt.Printf("%s  %-11s  %-30s  %s\n",
			j.JobID, j.Status, j.FileMetadata.Name, j.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("%d job(s)\n", len(list))
	return nil
}

func exportAction(ctx context.Context, cmd *cli.Command) error {
	_, pool, err := openPool(ctx, cmd)
	if err != nil {
		return err
	}
	defer pool.Close()

	jobs := repository.NewJobRepository(pool, slog.Default())
	svc := export.NewService(jobs, slog.Default())
	data, err := svc.ExportJobsXLSX(ctx, cmd.String("user"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	out := cmd.String("out")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
	return nil
}

func queueStatsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, pool, err := openPool(ctx, cmd)
	if err != nil {
		return err
	}
	defer pool.Close()

	q := queue.NewPGQueue(pool, cfg.Queue, slog.Default())
	stats, err := q.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("ready:     %d\nin-flight: %d\n", stats.Ready, stats.InFlight)
	return nil
}
