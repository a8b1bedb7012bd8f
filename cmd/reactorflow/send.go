package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/reactorflow"
	"github.com/drblury/reactorflow/messages"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Signal Demo or Sample messages to a reactor",
		Long: `Resolve a reactor on the lookup service and signal it one or more
built-in messages. The n-th message carries n in its int field.`,
		RunE: runSend,
	}
	flags := cmd.Flags()
	flags.String("to", "", wrapString("name of the receiving reactor"))
	flags.String("type", "demo", wrapString("message type (demo, sample)"))
	flags.Int("count", 1, wrapString("number of messages"))
	flags.String("text", "hello", wrapString("text for the string fields"))
	flags.Duration("interval", 0, wrapString("pause between messages"))
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runSend(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if conf.Name == "" {
		conf.Name = "reactorflow-send"
	}
	logger, err := newLogger(cmd, conf)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	to, _ := flags.GetString("to")
	kind, _ := flags.GetString("type")
	count, _ := flags.GetInt("count")
	text, _ := flags.GetString("text")
	interval, _ := flags.GetDuration("interval")

	var typeID int32
	switch strings.ToLower(kind) {
	case "demo":
		typeID = messages.DemoTypeID
	case "sample":
		typeID = messages.SampleTypeID
	default:
		return fmt.Errorf("unknown message type %q (expected demo or sample)", kind)
	}

	r, err := reactorflow.NewReactor(cmd.Context(), conf, reactorflow.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = r.Stop() }()
	for _, m := range messages.All() {
		if err := r.RegisterMessage(m.Codec, m.Factory); err != nil {
			return err
		}
	}

	for i := range count {
		msg, err := r.Checkout(typeID)
		if err != nil {
			return err
		}
		fill(msg, int32(i+1), text)
		if err := r.Signal(cmd.Context(), msg, to); err != nil {
			return err
		}
		if interval > 0 && i < count-1 {
			select {
			case <-time.After(interval):
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d %s message(s) to %s\n", count, strings.ToLower(kind), to)
	return nil
}

func fill(msg reactorflow.Message, n int32, text string) {
	switch m := msg.(type) {
	case *messages.Demo:
		m.StringField.Set(text)
		m.StringBufferField.Set(text)
		m.IntField = n
		m.BoolField = n%2 == 0
		m.DoubleField = float64(n) / 2
		m.LongField = time.Now().UnixNano()
	case *messages.Sample:
		m.IntField = n
		m.StringField.Set(text)
	}
}
