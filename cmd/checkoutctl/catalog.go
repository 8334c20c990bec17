package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/psicolfis/checkout-api/internal/catalog"
)

func catalogCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the products sold through checkout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			return printCatalog(cmd.OutOrStdout(), catalog.New(catalog.WithProductRefs(s.cfg.Checkout.ProductRefs)))
		},
	}
}

func printCatalog(w io.Writer, c *catalog.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tPRICE\tMINOR\tREF")
	for _, product := range c.Products() {
		ref := product.ProcessorProductRef
		if ref == "" {
			ref = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%d\t%s\n",
			product.Key,
			product.DisplayName,
			product.UnitPrice.StringFixed(2),
			product.Currency,
			product.MinorUnits(),
			ref,
		)
	}
	return tw.Flush()
}
