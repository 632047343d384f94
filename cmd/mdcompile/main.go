// Command mdcompile assembles one day of market data archives: per-region
// contract listing books on a fixed 30-minute grid and per-contract item
// records, each packed as a bulk file with a byte-offset index plus a
// tarball of the individual members.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/OrbitalEnterprises/evekit-source-mdtools/compile"
)

func main() {
	app := &cli.App{
		Name:  "mdcompile",
		Usage: "compile a day of market data into indexed bulk archives",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "date",
				Usage:    "calendar day to compile (YYYYMMDD, UTC)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "snapshots",
				Usage:    "directory tree holding raw per-region snapshot files",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "items",
				Usage:    "directory tree holding raw per-contract item files",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "output",
				Usage:    "directory receiving the day's archives",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "step",
				Usage: "grid cadence; must evenly divide the day",
				Value: compile.DefaultStep,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "parallelism bound (0 = GOMAXPROCS)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log progress to stderr",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mdcompile:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	day, err := time.ParseInLocation("20060102", c.String("date"), time.UTC)
	if err != nil {
		return fmt.Errorf("bad --date (want YYYYMMDD): %w", err)
	}

	var logger *slog.Logger
	if c.Bool("verbose") {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	return compile.Run(c.Context, compile.Config{
		Date:        day,
		SnapshotDir: c.String("snapshots"),
		ItemsDir:    c.String("items"),
		OutputDir:   c.String("output"),
		Step:        c.Duration("step"),
		Workers:     c.Int("workers"),
		Logger:      logger,
	})
}
