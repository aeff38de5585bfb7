package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCatalogCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and refresh the comet and satellite catalogs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh [name...]",
		Short: "Download catalogs now regardless of their age",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(root, false)
			if err != nil {
				return err
			}
			defer a.closeLog()

			if len(args) == 0 {
				return a.refresher.RefreshAll(cmd.Context())
			}
			for _, name := range args {
				if err := a.refresher.Refresh(cmd.Context(), name); err != nil {
					return err
				}
				ds := a.store.Get(name)
				if ds != nil {
					fmt.Printf("%s: %d bodies, last modified %s\n", name, len(ds.Targets), ds.LastModified.Local().Format(time.RFC1123))
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show each catalog's age and size, fetching missing or stale ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(root, false)
			if err != nil {
				return err
			}
			defer a.closeLog()
			if err := a.loadCatalogs(cmd.Context()); err != nil {
				return err
			}

			now := time.Now()
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATALOG\tFORMAT\tBODIES\tSKIPPED\tLAST MODIFIED\tAGE")
			for _, src := range a.refresher.Sources() {
				ds := a.store.Get(src.Name)
				if ds == nil {
					fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", src.Name, src.Format)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
					src.Name, src.Format, len(ds.Targets), ds.Skipped,
					ds.LastModified.Local().Format("2006-01-02 15:04 MST"),
					ds.Age(now).Round(time.Minute))
			}
			return tw.Flush()
		},
	})
	return cmd
}
