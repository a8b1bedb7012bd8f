package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/drblury/reactorflow"
)

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Run the lookup service",
		Long: `Run the lookup service reactors publish themselves on. Entries are kept
in memory: name, endpoint and channel. Names are case insensitive, and a
reactor publishing channel 0 is given the next free channel.`,
		RunE: runLookup,
	}
	cmd.Flags().String("address", ":7666", wrapString("address to listen on"))
	return cmd
}

func runLookup(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, conf)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("address")

	srv := reactorflow.NewLookupServer(reactorflow.NewLookupStore(), logger)
	err = srv.ListenAndServe(cmd.Context(), addr)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
