package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/client"
	"github.com/jmcleod/storefront/storefront"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Manage the shopping cart",
}

// withSession restores the stored session and hands a ready storefront to fn.
func withSession(ctx context.Context, fn func(*storefront.Storefront) error) error {
	sf, closeStore, err := openStorefront()
	if err != nil {
		return err
	}
	defer closeStore()
	if err := sf.Auth().Restore(ctx); err != nil {
		return err
	}
	if !sf.Auth().Authenticated() {
		return fmt.Errorf("not signed in; run: storefront login")
	}
	return fn(sf)
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(sf *storefront.Storefront) error {
			printCart(sf.Cart().Items())
			return nil
		})
	},
}

var cartAddCmd = &cobra.Command{
	Use:   "add <product-id> [quantity]",
	Short: "Add a product to the cart",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		productID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		quantity := 1
		if len(args) == 2 {
			quantity, err = strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
		}
		return withSession(cmd.Context(), func(sf *storefront.Storefront) error {
			line, err := sf.Cart().Add(cmd.Context(), productID, quantity)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s x%d (line %d)\n", line.Product.Name, line.Quantity, line.ID)
			return nil
		})
	},
}

var cartUpdateCmd = &cobra.Command{
	Use:   "update <line-id> <quantity>",
	Short: "Set a cart line's quantity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lineID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid line id %q", args[0])
		}
		quantity, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		return withSession(cmd.Context(), func(sf *storefront.Storefront) error {
			if err := sf.Cart().UpdateQuantity(cmd.Context(), lineID, quantity); err != nil {
				return err
			}
			printCart(sf.Cart().Items())
			return nil
		})
	},
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove <line-id>",
	Short: "Remove a cart line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lineID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid line id %q", args[0])
		}
		return withSession(cmd.Context(), func(sf *storefront.Storefront) error {
			if err := sf.Cart().Remove(cmd.Context(), lineID); err != nil {
				return err
			}
			printCart(sf.Cart().Items())
			return nil
		})
	},
}

func printCart(items []client.Line) {
	if len(items) == 0 {
		fmt.Println("Cart is empty")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tPRODUCT\tQTY\tPRICE")
	var total int64
	for _, l := range items {
		price := l.Product.Price
		if l.Product.DiscountPrice > 0 {
			price = l.Product.DiscountPrice
		}
		total += price * int64(l.Quantity)
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", l.ID, l.Product.Name, l.Quantity, formatPrice(price))
	}
	w.Flush()
	fmt.Printf("Total: %s\n", formatPrice(total))
}

func formatPrice(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func init() {
	cartCmd.AddCommand(cartShowCmd)
	cartCmd.AddCommand(cartAddCmd)
	cartCmd.AddCommand(cartUpdateCmd)
	cartCmd.AddCommand(cartRemoveCmd)
	rootCmd.AddCommand(cartCmd)
}
