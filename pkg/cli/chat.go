package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/usecase/conversation"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg   config
		track int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "track",
			Aliases:     []string{"day"},
			Usage:       "Seminar day to start with (1, 2 or 3)",
			Value:       int64(model.TrackDay1),
			Sources:     cli.EnvVars("TOLERANCIA_TRACK"),
			Destination: &track,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, clientFlags(&cfg)...)
	flags = append(flags, archiveFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk with the tutor of a seminar day",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, os.Stderr)
			if err != nil {
				return err
			}
			if err := model.Track(track).Validate(); err != nil {
				return err
			}

			// Initialize dependencies
			client, err := cfg.newTutorClient()
			if err != nil {
				return err
			}

			storage, closeStorage, err := cfg.newArchiveStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage()

			mgr := conversation.New(ctx, conversation.NewInput{
				Dispatcher: client,
				Storage:    storage,
				Config: conversation.Config{
					StorageKey:  cfg.archiveKey,
					MaxMessages: int(cfg.maxMessages),
					Track:       model.Track(track),
				},
			})

			repl := &chatREPL{mgr: mgr, w: c.Root().Writer}
			return repl.run(ctx, os.Stdin)
		},
	}
}

type chatREPL struct {
	mgr *conversation.Manager
	w   io.Writer
}

// run reads lines from r until EOF or "exit". Slash commands control the
// session; any other line is sent to the tutor.
func (x *chatREPL) run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	fmt.Fprintf(x.w, "Chat session started (day %d). Type /help for commands, 'exit' to quit.\n", x.mgr.Track())
	x.printHistory()

	for {
		fmt.Fprintf(x.w, "[day %d] > ", x.mgr.Track())
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "exit" {
			break
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if err := x.command(ctx, line); err != nil {
				fmt.Fprintf(x.w, "! %s\n", err.Error())
			}
			continue
		}

		x.send(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read input")
	}

	fmt.Fprintf(x.w, "\nChat session completed\n")
	return nil
}

func (x *chatREPL) send(ctx context.Context, text string) {
	result, err := x.mgr.Send(ctx, text)
	switch {
	case errors.Is(err, conversation.ErrComposerLocked):
		q := x.mgr.Quota()
		fmt.Fprintf(x.w, "! daily limit reached, try again after %s\n", q.ResetAt.Local().Format(time.DateTime))
		return
	case err != nil:
		fmt.Fprintf(x.w, "! %s\n", err.Error())
		return
	}

	switch result.Outcome {
	case conversation.OutcomeReplied, conversation.OutcomeFailed:
		fmt.Fprintf(x.w, "%s\n", result.Reply.Text)
	case conversation.OutcomeQuotaExceeded:
		fmt.Fprintf(x.w, "! daily limit reached (%d messages), try again after %s\n",
			result.Quota.Limit, result.Quota.ResetAt.Local().Format(time.DateTime))
	case conversation.OutcomeDiscarded:
		fmt.Fprintf(x.w, "(reply discarded)\n")
	}
}

func (x *chatREPL) command(ctx context.Context, line string) error {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help":
		fmt.Fprintf(x.w, "/track N   switch to seminar day N\n"+
			"/regen     regenerate the last tutor reply\n"+
			"/clear     delete the conversation of the current day\n"+
			"/history   show the conversation of the current day\n"+
			"/quota     show the remaining messages\n"+
			"exit       quit\n")
		return nil

	case "/track":
		track, err := model.ParseTrack(arg)
		if err != nil {
			return err
		}
		if err := x.mgr.SwitchTrack(ctx, track); err != nil {
			return err
		}
		fmt.Fprintf(x.w, "Switched to day %d\n", track)
		x.printHistory()
		return nil

	case "/regen":
		target := lastModelMessage(x.mgr.Messages())
		if target == nil {
			return goerr.New("no reply to regenerate")
		}
		updated, err := x.mgr.Regenerate(ctx, target.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(x.w, "%s\n", updated.Text)
		return nil

	case "/clear":
		if err := x.mgr.Clear(ctx, x.mgr.Track()); err != nil {
			return err
		}
		fmt.Fprintf(x.w, "Conversation of day %d cleared\n", x.mgr.Track())
		return nil

	case "/history":
		x.printHistory()
		return nil

	case "/quota":
		q := x.mgr.Quota()
		if q == nil {
			fmt.Fprintf(x.w, "No quota information yet\n")
			return nil
		}
		fmt.Fprintf(x.w, "%d/%d messages left, resets at %s\n",
			q.Remaining, q.Limit, q.ResetAt.Local().Format(time.DateTime))
		return nil

	default:
		return goerr.New("unknown command", goerr.V("command", name))
	}
}

func (x *chatREPL) printHistory() {
	for _, msg := range x.mgr.Messages() {
		label := "you"
		if msg.Role == model.RoleModel {
			label = "tutor"
		}
		fmt.Fprintf(x.w, "%s %s: %s\n",
			time.UnixMilli(msg.Timestamp).Local().Format("15:04"), label, msg.Text)
	}
}

func lastModelMessage(messages []model.Message) *model.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleModel {
			return &messages[i]
		}
	}
	return nil
}

// RunChatREPLForTest is a test helper that drives the chat loop over a manager
func RunChatREPLForTest(ctx context.Context, mgr *conversation.Manager, in io.Reader, out io.Writer) error {
	repl := &chatREPL{mgr: mgr, w: out}
	return repl.run(ctx, in)
}
