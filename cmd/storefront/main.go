package main

import "github.com/jmcleod/storefront/cmd/storefront/cmd"

func main() {
	cmd.Execute()
}
