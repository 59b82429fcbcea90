package main

import "github.com/Checker-Finance/authr-client/internal/cli"

func main() {
	cli.Execute()
}
