// Command decisioncore is a CLI surface over the decision-evaluation
// core: evaluate a ruleset against a context, manage rule versions,
// run A/B tests, and expose Prometheus metrics. The core packages
// (agent, jsonrule, version, abtest, ...) have no CLI dependency of
// their own; this binary is one collaborator wiring them together,
// the way an admin web surface or a DB adapter would.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; production deployments set DECISIONCORE_* in
	// the environment directly.
	_ = godotenv.Load()
	os.Exit(Execute())
}
