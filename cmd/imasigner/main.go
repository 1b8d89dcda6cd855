package main

import "github.com/relaykit/imasigner/cmd/imasigner/cmd"

func main() {
	cmd.Execute()
}
