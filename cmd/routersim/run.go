package routersim

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/linkstate/routerd/proto"
	"github.com/linkstate/routerd/util/logger"
)

// Run is the routersim entry point: it loads a topology file named by the
// first non-flag argument, builds and starts a router per entry, waits for
// convergence, prints every router's routing table, then drops into an
// interactive REPL for inspecting the running simulation.
func Run(args []string) int {
	fs := flag.NewFlagSet("routersim", flag.ContinueOnError)
	convergeTimeout := fs.Duration("converge-timeout", 10*time.Second, "how long to wait for the simulation to converge")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: routersim <topology.json>")
		return 2
	}

	top, err := LoadTopology(fs.Arg(0))
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}

	sim, err := Build(top, DefaultConfig(), proto.BinaryCodec{})
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	defer sim.Stop()

	fmt.Printf("Starting %d router(s)...\n", len(sim.Hostnames()))
	sim.Start()

	if sim.WaitForConvergence(*convergeTimeout, 200*time.Millisecond) {
		fmt.Println("Converged.")
	} else {
		fmt.Println("Did not converge within the timeout; routing tables may still be settling.")
	}

	for _, id := range sim.Hostnames() {
		PrintRoutingTable(id, sim.Router(id).RoutingTable())
	}

	NewRepl(sim).Loop()
	return 0
}
