package main

import (
	_ "net/http/pprof"

	"github.com/mikeydub/go-indexer/indexer/cmd"
)

func main() {
	cmd.Execute()
}
