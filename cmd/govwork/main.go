// govwork CLI - operator tooling for the fund analytics dataset
//
// Usage:
//   govwork fetch   --data-dir ./data
//   govwork load    --data-dir ./data --db ./mplads.db
//   govwork refresh --db ./mplads.db
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/skjhavit/mpladsanalyticsdashboard/ingest"
	"github.com/skjhavit/mpladsanalyticsdashboard/jobs"
	"github.com/skjhavit/mpladsanalyticsdashboard/store/sqlite"
)

func main() {
	app := &cli.App{
		Name:  "govwork",
		Usage: "Fetch, load, and refresh the legislator-fund disclosure dataset",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-url",
				Value:   ingest.DefaultBaseURL,
				Usage:   "Upstream portal endpoint",
				EnvVars: []string{"GOVWORK_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "db",
				Value:   "mplads.db",
				Usage:   "SQLite database path",
				EnvVars: []string{"GOVWORK_DB"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./data",
				Usage:   "Directory holding raw tile payloads",
				EnvVars: []string{"GOVWORK_DATA_DIR"},
			},
		},

		Commands: []*cli.Command{
			fetchCommand(),
			loadCommand(),
			refreshCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// fetchCommand downloads all tiles and writes the raw payloads to the
// data directory, one <tile>.json per report.
func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Download raw tile payloads from the portal",
		Action: func(c *cli.Context) error {
			dir := c.String("data-dir")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			client := ingest.NewClient(c.String("base-url"))
			for _, t := range ingest.Tiles {
				raw, err := client.FetchTile(c.Context, t)
				if err != nil {
					return err
				}
				path := filepath.Join(dir, t.Name+".json")
				if err := os.WriteFile(path, raw, 0o644); err != nil {
					return err
				}
				fmt.Printf("fetched %s (%d bytes) -> %s\n", t.Name, len(raw), path)
			}
			return nil
		},
	}
}

// loadCommand builds a dataset from previously fetched payloads and
// swaps it into the database.
func loadCommand() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Load fetched tile payloads into the database",
		Action: func(c *cli.Context) error {
			dir := c.String("data-dir")
			tiles := make(map[string][]byte, len(ingest.Tiles))
			for _, t := range ingest.Tiles {
				raw, err := os.ReadFile(filepath.Join(dir, t.Name+".json"))
				if err != nil {
					return err
				}
				tiles[t.Name] = raw
			}

			ds, err := ingest.BuildDataset(tiles)
			if err != nil {
				return err
			}

			store, err := sqlite.New(c.String("db"))
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.ReplaceDataset(c.Context, ds); err != nil {
				return err
			}
			fmt.Printf("loaded %d allocations, %d expenditures, %d recommendations, %d completions\n",
				len(ds.Allocations), len(ds.Expenditures), len(ds.Recommendations), len(ds.Completions))
			return nil
		},
	}
}

// refreshCommand runs a full fetch-and-swap in one step, the same path
// the server's admin endpoint takes.
func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Fetch from the portal and swap the dataset in one step",
		Action: func(c *cli.Context) error {
			store, err := sqlite.New(c.String("db"))
			if err != nil {
				return err
			}
			defer store.Close()

			refresher := ingest.NewRefresher(
				ingest.NewClient(c.String("base-url")),
				store,
				jobs.NewMemory(),
			)
			if err := refresher.Run(c.Context); err != nil {
				return err
			}
			fmt.Println("dataset refreshed")
			return nil
		},
	}
}
