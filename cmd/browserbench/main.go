// Package main is the browserbench entry point.
package main

import "github.com/browserbench/browserbench/cmd"

func main() {
	cmd.Execute()
}
