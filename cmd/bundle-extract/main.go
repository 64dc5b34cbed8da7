// Command bundle-extract unpacks offline game-bundle archives.
package main

import (
	"fmt"
	"os"

	_ "net/http/pprof"

	"github.com/distribution/bundle-extract/extract"
	_ "github.com/distribution/bundle-extract/extractors"
)

func main() {
	if err := extract.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
