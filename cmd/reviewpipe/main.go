// Command reviewpipe approves pull requests whose review comments are all
// resolved. It runs as an HTTP service, a Kafka consumer or a one-shot job.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
