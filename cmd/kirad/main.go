package main

import (
	"github.com/Paintersrp/kirad/internal/cli"
	"github.com/Paintersrp/kirad/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
