package main

import "github.com/mvp-joe/cindex/internal/cli"

func main() {
	cli.Execute()
}
