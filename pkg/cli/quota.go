package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/urfave/cli/v3"
)

func quotaCommand() *cli.Command {
	var cfg config

	flags := loggingFlags(&cfg)
	flags = append(flags, clientFlags(&cfg)...)

	return &cli.Command{
		Name:  "quota",
		Usage: "Show the remaining daily allowance without consuming it",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, os.Stderr)
			if err != nil {
				return err
			}

			client, err := cfg.newTutorClient()
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, feature := range []model.Feature{model.FeatureGenerate, model.FeatureChat} {
				view, err := client.Quota(ctx, feature)
				if err != nil {
					return goerr.Wrap(err, "failed to get quota", goerr.V("feature", feature))
				}
				fmt.Fprintf(w, "%-9s %d/%d left, resets at %s\n",
					feature, view.Remaining, view.Limit, view.ResetAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}
