package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/drblury/reactorflow"
	configpkg "github.com/drblury/reactorflow/internal/runtime/config"
)

const Version = "0.1.0"

// Wrap is the column help texts are wrapped at.
const Wrap = 50

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reactorflow",
		Short: "low-latency typed messaging between reactors",
		Long: fmt.Sprintf(`reactorflow (v%s)

Reactors exchange fixed-layout binary messages over a pub/sub transport and
find each other through a lookup service. Configuration is read from a YAML
file, REACTORFLOW_* environment variables (e.g. REACTORFLOW_REACTOR_POOL_MAX=12),
flags and --set key=value overrides, in increasing precedence.`, Version),
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", wrapString("YAML config file"))
	flags.StringArray("set", nil, wrapString("override a config key, e.g. --set reactor.pool.demo.max=12 (repeatable)"))
	flags.StringSlice("env-file", nil, wrapString("dotenv files read before resolving the config (default .env,.env.local)"))
	flags.String("name", "", wrapString("reactor name on the lookup service"))
	flags.String("transport", "", wrapString("transport (channel, kafka, rabbitmq, nats, nats-jetstream, http, io, aws)"))
	flags.String("lookup-url", "", wrapString("base URL of the lookup service"))
	flags.String("log-level", "", wrapString("log level (debug, info, warn, error)"))
	flags.String("log-format", "", wrapString("log format (text, json)"))

	root.AddCommand(
		newServeCmd(),
		newLookupCmd(),
		newSendCmd(),
		newDecodeCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of reactorflow",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reactorflow v%s\n", Version)
		},
	}
}

// flagKeys maps flag names onto config keys. Only flags a command defines
// are bound.
var flagKeys = map[string]string{
	"name":       configpkg.KeyName,
	"transport":  configpkg.KeyTransport,
	"lookup-url": configpkg.KeyLookupURL,
	"log-level":  configpkg.KeyLogLevel,
	"log-format": configpkg.KeyLogFormat,
	"endpoint":   configpkg.KeyEndpoint,
	"channel":    configpkg.KeyChannel,
	"mode":       configpkg.KeyDispatchMode,
	"admin":      configpkg.KeyAdminEnabled,
	"admin-port": configpkg.KeyAdminPort,
	"metrics":    configpkg.KeyMetricsEnabled,
}

// loadConfig resolves the config from every layer. It is not validated.
func loadConfig(cmd *cobra.Command) (*reactorflow.Config, error) {
	var opts []configpkg.LoaderOption
	if f := cmd.Flags().Lookup("env-file"); f != nil && f.Changed {
		files, _ := cmd.Flags().GetStringSlice("env-file")
		opts = append(opts, configpkg.WithEnvFiles(slices.DeleteFunc(files, func(s string) bool {
			return strings.TrimSpace(s) == ""
		})...))
	}
	loader := configpkg.NewLoader(opts...)

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = loader.Viper().BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	pairs, _ := cmd.Flags().GetStringArray("set")
	overrides, err := configpkg.ParseOverrides(pairs)
	if err != nil {
		return nil, err
	}
	file, _ := cmd.Flags().GetString("config")
	conf, err := loader.Load(file, overrides)
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func newLogger(cmd *cobra.Command, conf *reactorflow.Config) (reactorflow.ServiceLogger, error) {
	level, err := reactorflow.ParseLogLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	return reactorflow.NewHandlerLogger(cmd.ErrOrStderr(), conf.LogFormat, level)
}

// wrapString wraps text at Wrap columns for flag help.
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
