package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/metaphotor/metaphotor/core"
)

// rawDumper is implemented by handlers that can list their native fields.
type rawDumper interface {
	Raw(ctx context.Context, path string) ([]core.RawField, error)
}

var inspectRaw bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the metadata of a photo or video",
	Long: `Print the metadata record of a file. With --raw every EXIF field of a
photo is listed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("inspect")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		path := args[0]

		h, err := a.resolver.Detect(ctx, path)
		if err != nil {
			return err
		}
		rec, err := h.Extract(ctx, path)
		if err != nil {
			return err
		}

		var raw []core.RawField
		if inspectRaw {
			if d, ok := h.(rawDumper); ok {
				if raw, err = d.Raw(ctx, path); err != nil {
					a.log.WarnErr(a.log.WithPath(ctx, path), "cannot list raw fields", err)
				}
			}
		}

		p := core.NewPrinter(jsonOutput)
		p.Writer = cmd.OutOrStdout()
		p.PrintRecord(rec, h.Info(), raw)
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectRaw, "raw", false, "also list the native container fields")
}
