package main

import "github.com/overmindtech/teardown/cmd"

func main() {
	cmd.Execute()
}
