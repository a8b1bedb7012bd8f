package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with credentials masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			for _, kv := range conf.Redacted() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", kv[0], kv[1])
			}
			if validate, _ := cmd.Flags().GetBool("validate"); validate {
				return conf.Validate()
			}
			return nil
		},
	}
	cmd.Flags().Bool("validate", false, wrapString("fail when the resolved config is invalid"))
	return cmd
}
