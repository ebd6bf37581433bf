package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/errors"
	"github.com/hpungsan/vouch/internal/ops"
	"github.com/hpungsan/vouch/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "vouch",
		Usage:   "Evidence-verified claim staging",
		Version: Version,
		Commands: []*cli.Command{
			snapshotCmd(db),
			stageCmd(db, cfg),
			pendingCmd(db),
			getCmd(db, cfg),
			decideCmd(db),
			duplicatesCmd(db, cfg),
			promoteCmd(db),
			reviewCmd(db),
			reverifyCmd(db, cfg),
			statsCmd(db),
			serveCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// snapshotCmd creates the snapshot command group.
func snapshotCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Store and fetch document snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "put",
				Usage: "Store a snapshot (reads content from stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "locator", Aliases: []string{"l"}, Usage: "Source document locator", Required: true},
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Content kind: text|markdown|html"},
					&cli.Int64Flag{Name: "captured-at", Usage: "Unix capture timestamp (default now)"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
					}

					content, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}

					output, err := ops.PutSnapshot(db, ops.PutSnapshotInput{
						Locator:    c.String("locator"),
						Content:    content,
						SourceKind: c.String("kind"),
						CapturedAt: c.Int64("captured-at"),
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
			{
				Name:      "get",
				Usage:     "Fetch a snapshot by ID, or the latest capture of a locator",
				ArgsUsage: "[id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "locator", Aliases: []string{"l"}, Usage: "Source document locator"},
				},
				Action: func(c *cli.Context) error {
					input := ops.GetSnapshotInput{
						Locator: c.String("locator"),
					}
					if c.NArg() > 0 {
						input.ID = c.Args().First()
					}

					output, err := ops.GetSnapshot(db, input)
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
		},
	}
}

// stageCmd creates the stage command.
func stageCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "stage",
		Usage: "Stage an extracted claim (reads evidence text from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Claim type", Required: true},
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "Natural key of the claimed entity", Required: true},
			&cli.StringFlag{Name: "snapshot", Aliases: []string{"s"}, Usage: "Snapshot ID to verify against"},
			&cli.StringFlag{Name: "locator", Aliases: []string{"l"}, Usage: "Snapshot locator (latest capture)"},
			&cli.StringFlag{Name: "payload", Usage: "Structured claim fields as JSON"},
			&cli.StringFlag{Name: "evidence-type", Usage: "Evidence category (e.g., quote)"},
			&cli.Float64Flag{Name: "confidence", Usage: "Extractor confidence in [0,1]"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("evidence text must be piped via stdin"))
			}

			evidence, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			input := ops.StageInput{
				Type:             c.String("type"),
				Key:              c.String("key"),
				EvidenceText:     evidence,
				EvidenceType:     c.String("evidence-type"),
				OracleConfidence: c.Float64("confidence"),
				SnapshotID:       c.String("snapshot"),
				SnapshotLocator:  c.String("locator"),
			}

			if raw := c.String("payload"); raw != "" {
				var payload map[string]any
				if err := json.Unmarshal([]byte(raw), &payload); err != nil {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("payload is not valid JSON: %v", err)))
				}
				input.Payload = payload
			}

			output, err := ops.Stage(db, cfg, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// pendingCmd creates the pending command.
func pendingCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List candidates awaiting review (pass --status for other states)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Status filter"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Claim type filter"},
			&cli.IntFlag{Name: "limit", Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			var output *ops.PendingOutput
			var err error

			if status := c.String("status"); status != "" {
				output, err = ops.List(db, ops.ListInput{
					Status: status,
					Type:   c.String("type"),
					Limit:  c.Int("limit"),
					Offset: c.Int("offset"),
				})
			} else {
				output, err = ops.Pending(db, ops.PendingInput{
					Type:   c.String("type"),
					Limit:  c.Int("limit"),
					Offset: c.Int("offset"),
				})
			}
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a candidate with verification, trail, and provenance",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("candidate id is required"))
			}

			output, err := ops.Fetch(db, cfg, ops.FetchInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// decideCmd creates the decide command.
func decideCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "decide",
		Usage:     "Record a review decision on a pending candidate",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "decision", Aliases: []string{"d"}, Usage: "accept|reject|merge|needs_more_evidence|defer", Required: true},
			&cli.StringFlag{Name: "actor", Aliases: []string{"a"}, Usage: "Who decided", Required: true},
			&cli.StringFlag{Name: "reasoning", Aliases: []string{"r"}, Usage: "Why", Required: true},
			&cli.Float64Flag{Name: "confidence", Usage: "Reviewer confidence in [0,1]"},
			&cli.StringFlag{Name: "suggested-name", Usage: "Canonical display name for promotion"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("candidate id is required"))
			}

			input := ops.DecideInput{
				CandidateID: c.Args().First(),
				Decision:    c.String("decision"),
				Actor:       c.String("actor"),
				Reasoning:   c.String("reasoning"),
			}
			if c.IsSet("confidence") {
				v := c.Float64("confidence")
				input.ConfidenceOverride = &v
			}
			if name := c.String("suggested-name"); name != "" {
				input.SuggestedName = &name
			}

			output, err := ops.Decide(db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// duplicatesCmd creates the duplicates command.
func duplicatesCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "duplicates",
		Usage:     "Check a candidate or key against current canonical entities",
		ArgsUsage: "[candidate-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "Key to check directly"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Claim type, required with --key"},
		},
		Action: func(c *cli.Context) error {
			input := ops.DuplicatesInput{
				Key:  c.String("key"),
				Type: c.String("type"),
			}
			if c.NArg() > 0 {
				input.CandidateID = c.Args().First()
			}

			output, err := ops.FindDuplicates(db, cfg, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// promoteCmd creates the promote command.
func promoteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "promote",
		Usage:     "Promote an accepted candidate into the canonical entity store",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Entity display name"},
			&cli.StringFlag{Name: "merge-with", Usage: "Merge into this existing entity"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Preview without writing"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("candidate id is required"))
			}

			output, err := ops.Promote(db, ops.PromoteInput{
				CandidateID:       c.Args().First(),
				CanonicalName:     c.String("name"),
				MergeWithEntityID: c.String("merge-with"),
				DryRun:            c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// reviewCmd creates the review command.
func reviewCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Apply an external review event (idempotent per event id)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "event-id", Aliases: []string{"e"}, Usage: "External delivery id", Required: true},
			&cli.StringFlag{Name: "candidate", Aliases: []string{"c"}, Usage: "Candidate id", Required: true},
			&cli.StringFlag{Name: "decision", Aliases: []string{"d"}, Usage: "accept|reject|merge|needs_more_evidence|defer", Required: true},
			&cli.StringFlag{Name: "actor", Aliases: []string{"a"}, Usage: "Who decided", Required: true},
			&cli.StringFlag{Name: "reasoning", Aliases: []string{"r"}, Usage: "Why", Required: true},
			&cli.Float64Flag{Name: "confidence", Usage: "Reviewer confidence in [0,1]"},
			&cli.StringFlag{Name: "suggested-name", Usage: "Canonical display name for promotion"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ApplyReviewInput{
				EventID:     c.String("event-id"),
				CandidateID: c.String("candidate"),
				Decision:    c.String("decision"),
				Actor:       c.String("actor"),
				Reasoning:   c.String("reasoning"),
			}
			if c.IsSet("confidence") {
				v := c.Float64("confidence")
				input.ConfidenceOverride = &v
			}
			if name := c.String("suggested-name"); name != "" {
				input.SuggestedName = &name
			}

			output, err := ops.ApplyReview(db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// reverifyCmd creates the reverify command.
func reverifyCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "reverify",
		Usage:     "Re-run evidence verification (one candidate, or the pending queue)",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Pool size for queue mode"},
			&cli.IntFlag{Name: "limit", Usage: "Max candidates to process (0 = all pending)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				output, err := ops.ReverifyOne(db, cfg, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			output, err := ops.Reverify(c.Context, db, cfg, ops.ReverifyInput{
				Workers: c.Int("workers"),
				Limit:   c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Corpus totals by status, type, and confidence bucket",
		Action: func(c *cli.Context) error {
			output, err := ops.Stats(db)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the review web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8799, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(db, cfg, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if vouchErr, ok := err.(*errors.VouchError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", vouchErr.Code, vouchErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
