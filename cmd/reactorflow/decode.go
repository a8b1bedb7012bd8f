package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/drblury/reactorflow/internal/runtime/messagepool"
	"github.com/drblury/reactorflow/internal/runtime/wire"
	"github.com/drblury/reactorflow/messages"
)

// maxFrameFile bounds what decode reads.
const maxFrameFile = 1 << 20

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <file|->",
		Short: "Print a binary frame of a built-in message type as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecode,
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	var src io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	frame, err := io.ReadAll(io.LimitReader(src, maxFrameFile))
	if err != nil {
		return err
	}

	pools := messagepool.New()
	codecs := wire.NewRegistry()
	for _, m := range messages.All() {
		if err := pools.Register(m.Codec.TypeID(), m.Codec.Name(), m.Factory, 0, 1); err != nil {
			return err
		}
		if err := codecs.Register(m.Codec); err != nil {
			return err
		}
	}

	out, err := codecs.DescribeJSON(frame, pools)
	if err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
