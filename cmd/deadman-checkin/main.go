package main

import "github.com/oshokin/deadman/cmd/deadman-checkin/cmd"

func main() {
	cmd.Execute()
}
