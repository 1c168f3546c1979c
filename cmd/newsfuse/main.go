package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "newsfuse",
		Usage: "Retrieve news articles per query and fuse the results into one ranked candidate list",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"NEWSFUSE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "retrieve",
				Usage:  "Search the vector index for every query and write the per-query intermediate files",
				Action: retrieveCommand,
				Flags:  concat(storeFlags(), retrievalFlags(), embeddingFlags(), queryFlags(), sourceFlags(), metricsFlags()),
			},
			{
				Name:   "fuse",
				Usage:  "Fuse the per-query intermediate files into the master candidate list",
				Action: fuseCommand,
				Flags:  concat(fusionFlags(), queryFlags(), sourceFlags(), outputFlags(), metricsFlags()),
			},
			{
				Name:   "run",
				Usage:  "Retrieve, then fuse",
				Action: runCommand,
				Flags: concat(storeFlags(), retrievalFlags(), embeddingFlags(), fusionFlags(),
					queryFlags(), sourceFlags(), outputFlags(), metricsFlags()),
			},
			{
				Name:   "threshold",
				Usage:  "Export one query's collapsed rows within a cosine distance threshold",
				Action: thresholdCommand,
				Flags: concat(yearFlags(), sourceFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query name whose intermediate file is read",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output CSV path",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Keep articles with cosine distance <= threshold",
						Value: 0.225,
					},
				}),
			},
			{
				Name:   "compare",
				Usage:  "Flag one query's collapsed articles against an id list",
				Action: compareCommand,
				Flags: concat(yearFlags(), sourceFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query name whose intermediate file is read",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "ids",
						Usage:    "CSV with an id column",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output CSV path",
						Required: true,
					},
				}),
			},
			{
				Name:   "summary",
				Usage:  "Write article counts per publish month and NUTS code",
				Action: summaryCommand,
				Flags: concat(storeFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output CSV path",
						Required: true,
					},
				}),
			},
			{
				Name:   "keywords",
				Usage:  "Parse the keyword JSON column of a manual review sheet and join it back",
				Action: keywordsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "in",
						Aliases:  []string{"i"},
						Usage:    "Review sheet CSV with id and json columns",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Merged output CSV path",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "parsed",
						Usage: "Optional CSV path for the parsed keyword records alone",
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Print version and build information",
				Action: versionCommand,
			},
		},
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "SQLite database path or Postgres DSN",
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "Store driver (sqlite, postgres)",
		},
	}
}

func retrievalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Vector keys per store membership query",
		},
		&cli.IntFlag{
			Name:  "search-k",
			Usage: "Number of nearest neighbours requested per query",
		},
		&cli.BoolFlag{
			Name:  "exact",
			Usage: "Use exact rather than approximate search",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Queries retrieved concurrently",
		},
	}
}

func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-provider",
			Usage: "Embedding provider (hash, jina, openai)",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service base URL",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
		},
	}
}

func yearFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "start-year",
			Usage: "First publish year kept",
		},
		&cli.IntFlag{
			Name:  "end-year",
			Usage: "Last publish year kept",
		},
	}
}

func fusionFlags() []cli.Flag {
	return concat(yearFlags(), []cli.Flag{
		&cli.IntFlag{
			Name:    "k",
			Aliases: []string{"top"},
			Usage:   "Rows kept per query before the union",
		},
		&cli.Float64Flag{
			Name:  "max-distance",
			Usage: "Drop rows above this cosine distance before ranking (0 disables)",
		},
		&cli.StringFlag{
			Name:  "label",
			Usage: "Run label used in the master file name",
		},
	})
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "query",
			Usage: "Query as name=text, repeatable; replaces the configured query list",
		},
	}
}

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "source-path",
			Usage: "Prefix of the intermediate files (<source-path>_<name>.csv)",
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "output-path",
			Usage: "Directory of the master list",
		},
	}
}

func metricsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "metrics-path",
			Usage: "Directory for a Prometheus textfile written at the end of the run",
		},
	}
}
