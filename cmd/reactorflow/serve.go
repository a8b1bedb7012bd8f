package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/drblury/reactorflow"
	configpkg "github.com/drblury/reactorflow/internal/runtime/config"
	"github.com/drblury/reactorflow/messages"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a reactor that logs every Demo and Sample message it receives",
		Long: `Run a reactor with the built-in message types. The reactor publishes
itself on the lookup service, consumes its channel and logs each message
until it is interrupted.`,
		RunE: runServe,
	}
	flags := cmd.Flags()
	flags.String("endpoint", configpkg.DefaultEndpoint, wrapString("host:port peers use to reach this reactor"))
	flags.Int32("channel", 0, wrapString("channel to consume; 0 lets the lookup service assign one"))
	flags.String("mode", "sync", wrapString("dispatch mode (sync, queued)"))
	flags.Bool("admin", false, wrapString("serve the admin API"))
	flags.Int("admin-port", configpkg.DefaultAdminPort, wrapString("admin API port"))
	flags.Bool("metrics", false, wrapString("record Prometheus router metrics"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, conf)
	if err != nil {
		return err
	}

	r, err := reactorflow.NewReactor(cmd.Context(), conf,
		reactorflow.WithLogger(logger),
		reactorflow.WithFrameHooks(reactorflow.LoggingHooks(logger)),
	)
	if err != nil {
		return err
	}
	if err := registerBuiltins(r, logger); err != nil {
		_ = r.Stop()
		return err
	}

	if err := r.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func registerBuiltins(r *reactorflow.Reactor, logger reactorflow.ServiceLogger) error {
	for _, m := range messages.All() {
		if err := r.RegisterMessage(m.Codec, m.Factory); err != nil {
			return err
		}
	}
	err := reactorflow.RegisterHandler(r, messages.DemoTypeID, func(d *messages.Demo) error {
		logger.Info("Demo received", reactorflow.LogFields{
			"stringField":       d.StringField.String(),
			"stringBufferField": d.StringBufferField.String(),
			"intField":          d.IntField,
			"boolField":         d.BoolField,
			"doubleField":       d.DoubleField,
			"longField":         d.LongField,
		})
		return nil
	})
	if err != nil {
		return err
	}
	return reactorflow.RegisterHandler(r, messages.SampleTypeID, func(s *messages.Sample) error {
		logger.Info("Sample received", reactorflow.LogFields{
			"intField":    s.IntField,
			"stringField": s.StringField.String(),
		})
		return nil
	})
}
