// Command apidb maintains a local queryable index of OpenAPI operations
// and schemas.
package main

import (
	"fmt"
	"os"

	"github.com/apidb-dev/apidb/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
