package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/camelspotter/libinstrument/internal/settings"
	"github.com/camelspotter/libinstrument/pkg/cmd/dsos"
	"github.com/camelspotter/libinstrument/pkg/cmd/options"
	"github.com/camelspotter/libinstrument/pkg/cmd/resolve"
	"github.com/camelspotter/libinstrument/pkg/cmd/symbols"
)

func NewRootCmd(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:               settings.CmdName,
		Short:             "instrument inspects the symbol and debug surface of instrumented binaries",
		Long:              `instrument loads the function symbol tables the tracing runtime works with, resolves addresses to names and source locations, and shows which shared objects the DSO filter selects.`,
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(symbols.NewCommand(opts))
	cmd.AddCommand(resolve.NewCommand(opts))
	cmd.AddCommand(dsos.NewCommand(opts))
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Sets log level to debug")

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger().Level(log.InfoLevel)

	go func() {
		<-ctx.Done()
		cancel()
	}()

	opts := options.NewCommonOptions(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	if err := NewRootCmd(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
