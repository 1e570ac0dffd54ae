package main

import "advisor-quorum/internal/cli"

func main() {
	cli.Execute()
}
