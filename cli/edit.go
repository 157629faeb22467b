package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
)

type editFlags struct {
	title       string
	description string
	comment     string
	tags        string
	gps         string
	created     string
}

var editOpts editFlags

var editCmd = &cobra.Command{
	Use:   "edit <file>",
	Short: "Write new metadata into a photo or video",
	Long: `Write the given fields into the file's own metadata container. Fields
without a flag keep their current value. --gps takes the packed form
"lat,lon,city,country,code"; empty parts are allowed.

Video files are rewritten into a new file whose path is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("edit")
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
		upd := rec.Clone()
		if err := editOpts.apply(cmd.Flags(), upd); err != nil {
			return err
		}

		res, err := h.Write(ctx, path, upd)
		if err != nil {
			return err
		}
		p := core.NewPrinter(jsonOutput)
		p.Writer = cmd.OutOrStdout()
		p.PrintSuccess("metadata written to " + res.Path)
		return nil
	},
}

// apply copies the flags the user set onto rec.
func (f *editFlags) apply(flags *pflag.FlagSet, rec *core.MediaRecord) error {
	if flags.Changed("title") {
		rec.Title = strings.TrimSpace(f.title)
	}
	if flags.Changed("description") {
		rec.Description = strings.TrimSpace(f.description)
	}
	if flags.Changed("comment") {
		rec.Comment = strings.TrimSpace(f.comment)
	}
	if flags.Changed("tags") {
		rec.Tags = core.SplitTags(f.tags)
	}
	if flags.Changed("created") {
		created := strings.TrimSpace(f.created)
		if !core.ValidCreated(created) {
			return fmt.Errorf("--created must look like %q", core.CreatedLayout)
		}
		rec.Created = created
	}
	if flags.Changed("gps") {
		g, err := gps.Unpack(f.gps)
		if err != nil {
			return fmt.Errorf("--gps: %w", err)
		}
		rec.GPS = g
	}
	return nil
}

func init() {
	fs := editCmd.Flags()
	fs.StringVar(&editOpts.title, "title", "", "title")
	fs.StringVar(&editOpts.description, "description", "", "description")
	fs.StringVar(&editOpts.comment, "comment", "", "comment")
	fs.StringVar(&editOpts.tags, "tags", "", "space separated tags")
	fs.StringVar(&editOpts.gps, "gps", "", `location as "lat,lon,city,country,code"`)
	fs.StringVar(&editOpts.created, "created", "", `creation time as "YYYY-MM-DD HH:MM:SS"`)
}
