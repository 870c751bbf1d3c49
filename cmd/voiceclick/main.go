package main

import (
	"os"

	"voiceclick/cmd/voiceclick/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
