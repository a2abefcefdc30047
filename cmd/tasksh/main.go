package main

import (
	"github.com/robotalks/taskbridge/pkg/cli/sh"
	"github.com/robotalks/taskbridge/pkg/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
