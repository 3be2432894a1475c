package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cmd := &cli.Command{
		Name:  "api",
		Usage: "Multi-tenant authentication service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serve,
			},
			{
				Name:   "bootstrap",
				Usage:  "Create DynamoDB tables and indexes that do not exist yet",
				Action: bootstrap,
			},
			{
				Name:  "outbox",
				Usage: "Operate on the email outbox",
				Commands: []*cli.Command{
					{
						Name:  "drain",
						Usage: "Deliver queued, retry and failed messages once",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 10, Usage: "Messages to process (1-100)"},
							&cli.IntFlag{Name: "max-attempts", Usage: "Attempts before a message is failed (0 uses OUTBOX_MAX_ATTEMPTS)"},
							&cli.StringFlag{Name: "purpose", Usage: "Only drain messages with this purpose"},
						},
						Action: drainOutbox,
					},
					{
						Name:  "cleanup",
						Usage: "Delete sent and failed messages past retention",
						Flags: []cli.Flag{
							&cli.DurationFlag{Name: "retention", Usage: "Age cutoff (0 uses OUTBOX_RETENTION)"},
						},
						Action: cleanupOutbox,
					},
					{
						Name:   "stats",
						Usage:  "Count messages per status",
						Action: outboxStats,
					},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
