package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/bpmnflow/internal/mq"
)

// NewEventsCmd создаёт группу команд для событий flow.
func NewEventsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Watch flow events published to RabbitMQ",
	}

	cmd.AddCommand(newEventsTailCmd(appFn, outputFn))

	return cmd
}

func newEventsTailCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tail [PATTERN]",
		Short: "Print events as they arrive (PATTERN is a topic routing key, default #)",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := appFn(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := app.Config.Events
			if cfg.AMQPURL == "" {
				return errors.New("events are disabled: set AMQP_URL or events.amqp_url")
			}

			pattern := "#"
			if len(args) == 1 {
				pattern = args[0]
			}

			conn, err := mq.Dial(cfg.AMQPURL, app.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()
			conn.ContextDone(ctx)

			declare := func() (string, error) {
				if err := mq.DeclareExchange(conn, cfg.Exchange); err != nil {
					return "", err
				}
				return mq.DeclareTailQueue(conn, cfg.Exchange, pattern)
			}
			queue, err := declare()
			if err != nil {
				return err
			}

			out := outputFn()
			consumer := mq.NewConsumer(conn, queue, func(_ context.Context, msg *mq.Message) error {
				return printEvent(out, msg)
			}, app.Logger).WithResubscribe(declare)

			err = consumer.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func printEvent(out *Output, msg *mq.Message) error {
	if out.JSONMode() {
		return out.JSON(msg)
	}

	ev, err := msg.Event()
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s  %-15s  %s", msg.Timestamp.Local().Format(timeLayout), ev.Type, ev.Flow)
	if ev.StepName != "" {
		line += fmt.Sprintf("  step %d %s", ev.Step, ev.StepName)
	}
	if ev.Result != "" {
		line += "  " + ev.Result
	}
	if ev.Error != "" {
		line += "  error: " + ev.Error
	}
	_, err = fmt.Fprintln(out.Writer(), line)
	return err
}
