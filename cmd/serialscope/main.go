package main

import (
	"github.com/serialscope/serialscope/internal/cli"
)

func main() {
	cli.Execute()
}
