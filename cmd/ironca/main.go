package main

import "github.com/jmcleod/ironca/cmd/ironca/cmd"

func main() {
	cmd.Execute()
}
