package main

import "github.com/AzielCF/az-messenger/cmd"

func main() {
	cmd.Execute()
}
