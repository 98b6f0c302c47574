// Package main is the entry point for mpvbridge.
package main

import (
	"github.com/mpvbridge/mpvbridge/cmd"
	"github.com/mpvbridge/mpvbridge/config"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/samber/lo"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
