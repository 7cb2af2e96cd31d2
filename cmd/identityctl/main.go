// Command identityctl holds operator tooling: claim-token key generation,
// password hashing for seeding, and a session load test.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
