package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/urfave/cli/v3"
)

func generateCommand() *cli.Command {
	var (
		cfg     config
		jsonOut bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the raw response as JSON",
			Destination: &jsonOut,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, clientFlags(&cfg)...)

	return &cli.Command{
		Name:      "generate",
		Usage:     "Transform a limiting phrase",
		ArgsUsage: "<phrase>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, os.Stderr)
			if err != nil {
				return err
			}

			phrase := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(phrase) == "" {
				return goerr.New("phrase is required")
			}

			client, err := cfg.newTutorClient()
			if err != nil {
				return err
			}

			resp, err := client.Generate(ctx, phrase)
			if err != nil {
				var qe *model.QuotaExceededError
				if errors.As(err, &qe) {
					return goerr.New("daily limit reached",
						goerr.V("limit", qe.Quota.Limit),
						goerr.V("reset_at", qe.Quota.ResetAt.Local().Format(time.DateTime)))
				}
				return goerr.Wrap(err, "failed to generate transformation")
			}

			w := c.Root().Writer
			if jsonOut {
				encoder := json.NewEncoder(w)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(resp); err != nil {
					return goerr.Wrap(err, "failed to encode response")
				}
				return nil
			}

			t := resp.Transformation
			fmt.Fprintf(w, "Category: %s\n", t.Category)
			fmt.Fprintf(w, "Before:   %s\n", t.Old)
			fmt.Fprintf(w, "After:    %s\n", t.New)
			fmt.Fprintf(w, "Effect:   %s\n", t.Effect)
			fmt.Fprintf(w, "Practice: %d repetitions\n", t.RequiredReps)
			if !t.GeneratedByAI {
				fmt.Fprintf(w, "(suggested by rule, AI was unavailable)\n")
			}
			fmt.Fprintf(w, "\n%d/%d transformations left today\n", resp.RateLimit.Remaining, resp.RateLimit.Limit)
			return nil
		},
	}
}
