package routersim

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/linkstate/routerd/proto"
)

// Command is a REPL verb, one word typed at the `routersim>` prompt.
type Command string

// Handler processes one REPL command's arguments against sim.
type Handler func(sim *Sim, args []string)

// Repl reads commands from stdin and dispatches them to registered
// handlers, the same shape as the chat client's input loop (cmd/cmd.go,
// cmd/inputreader), adapted to a router simulation instead of a socket.
type Repl struct {
	scanner  *bufio.Scanner
	handlers map[Command]Handler
	sim      *Sim
}

// NewRepl builds a Repl with the ls, lsdb and hosts handlers already
// registered; help and exit are handled by Loop itself.
func NewRepl(sim *Sim) *Repl {
	r := &Repl{
		scanner:  bufio.NewScanner(os.Stdin),
		handlers: make(map[Command]Handler),
		sim:      sim,
	}
	r.AddHandler("ls", handleList)
	r.AddHandler("lsdb", handleListDB)
	r.AddHandler("hosts", handleHosts)
	return r
}

// AddHandler registers a handler for cmd, overriding any previous one.
func (r *Repl) AddHandler(cmd Command, h Handler) {
	r.handlers[cmd] = h
}

// Loop reads and dispatches commands until `exit` is entered or stdin is
// closed.
func (r *Repl) Loop() {
	fmt.Println("Ready for commands. Type 'exit' to stop, 'help' for a list of commands.")

	for {
		fmt.Print("routersim> ")

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				fmt.Fprintln(os.Stderr, "error reading from stdin:", err)
			}
			return
		}

		parts := strings.Fields(r.scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := Command(strings.ToLower(parts[0]))
		args := parts[1:]

		switch command {
		case "exit":
			return
		case "help":
			fmt.Println("Available commands:")
			for cmd := range r.handlers {
				fmt.Printf("- %s\n", cmd)
			}
			fmt.Println("- exit")
		default:
			handler, exists := r.handlers[command]
			if !exists {
				fmt.Printf("No handler registered for command: %q\n", command)
				continue
			}
			handler(r.sim, args)
		}
	}
}

func handleList(sim *Sim, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: ls <hostname>")
		return
	}

	host := proto.RouterID(args[0])
	r := sim.Router(host)
	if r == nil {
		fmt.Printf("No such router: %s\n", host)
		return
	}

	PrintRoutingTable(host, r.RoutingTable())
}

func handleListDB(sim *Sim, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: lsdb <hostname>")
		return
	}

	host := proto.RouterID(args[0])
	r := sim.Router(host)
	if r == nil {
		fmt.Printf("No such router: %s\n", host)
		return
	}

	fmt.Printf("Link state database for %s:\n", host)
	for _, lsa := range r.LSAs() {
		fmt.Printf("  %s seq=%d age=%d networks=%d\n", lsa.AdvRouter, lsa.SeqNo, lsa.Age, len(lsa.Networks))
		for net, entry := range lsa.Networks {
			fmt.Printf("    %s via %s cost=%.2f\n", net, entry.LocalAddress, entry.Cost)
		}
	}
}

func handleHosts(sim *Sim, args []string) {
	fmt.Println("Routers in this simulation:")
	for _, id := range sim.Hostnames() {
		fmt.Printf("  %s\n", id)
	}
}
