package dsos

import (
	"fmt"
	"os"

	log "github.com/rs/zerolog"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/camelspotter/libinstrument/pkg/cmd/options"
	"github.com/camelspotter/libinstrument/pkg/dso"
	"github.com/camelspotter/libinstrument/pkg/tracer"
)

type Options struct {
	pid int

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:               "dsos",
		Short:             fmt.Sprintf("dsos lists the shared objects of a process and how %s selects them", tracer.LibsEnv),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().IntVar(&o.pid, "pid", 0, "Inspect the process with this PID (default self)")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	if o.Debug {
		o.Logger = o.Logger.Level(log.DebugLevel)
	}

	pid := o.pid
	if pid == 0 {
		pid = os.Getpid()
	}

	objects, err := dso.LoadedObjects(pid)
	if err != nil {
		return err
	}

	patterns, defined, err := tracer.ParseLibsEnv()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Path", "Load Base", "Segments", "Selected"})
	for _, obj := range objects {
		selected := "yes"
		if !tracer.SelectDSO(patterns, defined, obj.Path) {
			selected = "no"
		}
		table.Append([]string{
			obj.Path,
			fmt.Sprintf("0x%x", obj.LoadBase()),
			fmt.Sprintf("%d", len(obj.Segments)),
			selected,
		})
	}
	table.Render()

	return nil
}
