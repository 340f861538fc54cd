package resolve

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/camelspotter/libinstrument/pkg/cmd/options"
	"github.com/camelspotter/libinstrument/pkg/srcline"
	"github.com/camelspotter/libinstrument/pkg/symtab"
)

type Options struct {
	base string

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:               "resolve <binary> <address>",
		Short:             "resolve translates a code address to a function name and source location",
		DisableAutoGenTag: true,
		Args:              cobra.ExactArgs(2),
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.base, "base", "b", "0", "Load base address (hex)")

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
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}

	tab, err := symtab.NewSymTab(args[0], base, symtab.WithLogger(&o.Logger))
	if err != nil {
		return err
	}

	name, err := tab.AddrToName(addr)
	if err != nil {
		name = "UNRESOLVED"
	}

	resolver := srcline.NewDwarfResolver(srcline.WithLogger(&o.Logger))
	loc, err := resolver.Resolve(args[0], addr-base)
	if err != nil {
		o.Logger.Debug().Err(err).Msg("no source location")
		loc = ""
	}

	if loc != "" {
		fmt.Printf("%s (%s)\n", name, loc)
	} else {
		fmt.Println(name)
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
