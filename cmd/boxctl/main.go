package main

import "boxdb/cmd/boxctl/cmd"

func main() {
	cmd.Execute()
}
