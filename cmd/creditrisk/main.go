package main

import "github.com/YuminosukeSato/creditrisk/internal/cli"

func main() {
	cli.Execute()
}
