package cli

import (
	"context"

	"github.com/m-mizutani/tolerancia/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "tolerancia",
		Usage: "Quota-gated AI coach for the tolerance window seminar",
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			generateCommand(),
			quotaCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.From(ctx).Error("command failed", logging.ErrAttr(err))
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
