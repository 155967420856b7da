package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the product catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, closeStore, err := openStorefront()
		if err != nil {
			return err
		}
		defer closeStore()

		products, err := sf.API().ListProducts(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPRICE\tSTOCK")
		for _, p := range products {
			price := formatPrice(p.Price)
			if p.DiscountPrice > 0 {
				price = formatPrice(p.DiscountPrice) + " (was " + formatPrice(p.Price) + ")"
			}
			stock := fmt.Sprintf("%d", p.Stock)
			if p.Stock == 0 {
				stock = "out of stock"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, price, stock)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(productsCmd)
}
