package main

import "github.com/barterdeck/barterdeck/internal/cli"

func main() {
	cli.Execute()
}
