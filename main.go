// The main package for the ingest executable.
package main

import (
	"github.com/mkonefal2/clickbait-verifier/cmd"
)

func main() {
	cmd.Execute()
}
