package main

import "sentry/internal/cli"

func main() {
	cli.Execute()
}
