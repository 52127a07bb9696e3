// Package main is the entry point for the adpulse campaign scoring pipeline.
package main

import (
	"adpulse/cmd"
)

func main() {
	cmd.Execute()
}
