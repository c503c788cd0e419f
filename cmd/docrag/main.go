// Package main is the entry point of the docrag command.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	docrag "github.com/kart-io/docrag/internal/docrag"
)

func main() {
	docrag.NewApp().Run()
}
