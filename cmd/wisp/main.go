package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/host"
)

type rootFlags struct {
	baseDir    string
	moduleDir  string
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "wisp",
		Short:         "wisp boots service modules and serves WebSocket path handlers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			if f.logLevel != "" {
				l, err := zerolog.ParseLevel(f.logLevel)
				if err != nil {
					return err
				}
				zerolog.SetGlobalLevel(l)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), f)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.baseDir, "base-dir", "b", ".", "installation base directory")
	pf.StringVarP(&f.moduleDir, "module-dir", "m", "", "module bundle directory (default <base-dir>/modules)")
	pf.StringVarP(&f.configFile, "config", "c", "", "configuration file (.yaml, .json, .toml, .properties)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Boot all modules and serve until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), f)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "modules",
		Short: "List compiled-in factories and the bundles that would be loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModules(cmd, f)
		},
	})
	return root
}

func (f *rootFlags) options() host.Options {
	opts := host.Options{
		BaseDir:    f.baseDir,
		ModuleDir:  f.moduleDir,
		ConfigFile: f.configFile,
	}
	// an explicit --log-level beats the config file and the environment
	if f.logLevel != "" {
		opts.Overrides = config.Map{"wisp": map[string]any{"logger": map[string]any{"level": f.logLevel}}}
	}
	return opts
}

func serve(ctx context.Context, f *rootFlags) error {
	return host.New(f.options()).Run(ctx)
}

func listModules(cmd *cobra.Command, f *rootFlags) error {
	opts := f.options()
	opts.Catalog = host.DefaultCatalog()
	h := host.New(opts)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "factories:")
	for _, n := range opts.Catalog.Names() {
		_, _ = fmt.Fprintf(out, "  %s\n", n)
	}

	bundles, err := h.Bundles()
	if err != nil {
		return err
	}
	dir, ok, _ := h.ModuleDir()
	if !ok {
		dir = "(catalog order)"
	}
	_, _ = fmt.Fprintf(out, "\nbundles from %s:\n", dir)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  NAME\tFACTORY\tENABLED\tKNOWN")
	for _, b := range bundles {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%t\t%t\n", b.Name, b.Factory, b.Enabled, opts.Catalog.Has(b.Factory))
	}
	return tw.Flush()
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("wisp failed")
		os.Exit(1)
	}
}
