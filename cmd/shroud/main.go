package main

import (
	"go.brendoncarroll.net/star"

	"shroudvm.org/shroud/svmcmd"
)

func main() {
	star.Main(svmcmd.Root())
}
