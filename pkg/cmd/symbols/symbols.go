package symbols

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	log "github.com/rs/zerolog"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/camelspotter/libinstrument/internal/output"
	"github.com/camelspotter/libinstrument/pkg/cmd/options"
	"github.com/camelspotter/libinstrument/pkg/symtab"
)

type Options struct {
	base   string
	status bool

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:               "symbols <binary> [binary...]",
		Short:             "symbols lists the function symbols the tracer would load for each binary",
		DisableAutoGenTag: true,
		Args:              cobra.MinimumNArgs(1),
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.base, "base", "b", "0", "Load base address (hex)")
	cmd.Flags().BoolVar(&o.status, "status", false, "Print a status line while loading")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, args []string) error {
	if o.Debug {
		o.Logger = o.Logger.Level(log.DebugLevel)
	}

	base, err := parseAddr(o.base)
	if err != nil {
		return err
	}

	var (
		loaded  atomic.Int64
		symbols atomic.Int64
		tables  = make([]*symtab.SymTab, len(args))
	)

	var g errgroup.Group
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			tab, err := symtab.NewSymTab(path, base, symtab.WithLogger(&o.Logger))
			if err != nil {
				return err
			}
			tables[i] = tab

			if o.status {
				output.PrintRight(output.PrettyLoadStatus(
					int(loaded.Add(1)),
					len(args),
					int(symbols.Add(int64(tab.Size()))),
				))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if o.status {
		fmt.Println()
	}

	for _, tab := range tables {
		fmt.Printf("%s (%d symbols @ 0x%x)\n", tab.Path(), tab.Size(), tab.Base())

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Symbol", "Address"})
		for _, sym := range tab.Symbols() {
			table.Append([]string{sym.Name, fmt.Sprintf("0x%x", sym.Addr)})
		}
		table.Render()
	}

	return nil
}

func parseAddr(s string) (uintptr, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, err
	}

	return uintptr(v), nil
}
