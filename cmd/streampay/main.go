// Command streampay issues and settles salary streams against a local
// SQLite record ledger.
package main

import (
	"fmt"
	"os"

	"github.com/jetrpay/streampay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
