package main

import "github.com/oshokin/deadman/cmd/deadman-server/cmd"

func main() {
	cmd.Execute()
}
