package main

import "rpy-converter/internal/cli"

func main() {
	cli.Execute()
}
