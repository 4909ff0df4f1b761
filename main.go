package main

import "storefront-payments/cmd"

func main() {
	cmd.Execute()
}
