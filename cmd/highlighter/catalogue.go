package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kitchenlens/highlighter/internal/catalogue"
	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/pkg/core"
)

func catalogueCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "Validate and print the merged object catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if err := config.Load(dir); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "using defaults:", err)
			}

			specs, err := loadCatalogue(viper.GetString("catalogueFile"))
			if err != nil {
				return err
			}
			// Same validation the engine applies at startup.
			if _, err := registry.New(specs, nil); err != nil {
				return err
			}
			return printCatalogue(cmd.OutOrStdout(), specs, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// loadCatalogue merges the inline catalogue with the optional catalogue file.
// Inline entries win on a code clash.
func loadCatalogue(file string) ([]core.ObjectSpec, error) {
	specs, err := config.GetCatalogue()
	if err != nil {
		return nil, err
	}
	if file == "" {
		return specs, nil
	}
	extra, err := catalogue.LoadFile(file)
	if err != nil {
		return nil, err
	}
	return catalogue.Merge(specs, extra), nil
}

func printCatalogue(w io.Writer, specs []core.ObjectSpec, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(specs)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tVISUAL\tOFFSET")
	for _, s := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f,%.3f,%.3f\n",
			s.Code, s.Name, s.Visual, s.Offset.X, s.Offset.Y, s.Offset.Z)
	}
	fmt.Fprintf(tw, "\n%d objects\n", len(specs))
	return tw.Flush()
}
