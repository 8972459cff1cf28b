// Tether CLI - serve a demo runtime, or connect to one and inspect it
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/tether/host"
	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
	"github.com/chazu/tether/session"
	"github.com/chazu/tether/trace"
	"github.com/chazu/tether/wire"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity")
	serveMode := flag.Bool("serve", false, "Serve the demo object space on this process's socket")
	pid := flag.Int("pid", 0, "Runtime process ID to connect to (defaults to this process)")
	current := flag.String("current", "Patient", "Root object kind to resolve")
	configDir := flag.String("config", "", "Directory to search for tether.toml (defaults to the working directory)")
	traceDump := flag.String("trace-dump", "", "Print the calls recorded in a trace database and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tether [options]\n\n")
		fmt.Fprintf(os.Stderr, "Connects to a tether runtime socket and inspects its root objects.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tether -serve                  # Serve the demo space for this process\n")
		fmt.Fprintf(os.Stderr, "  tether -pid 1234               # Connect to runtime 1234, inspect Patient\n")
		fmt.Fprintf(os.Stderr, "  tether -pid 1234 -current Machine\n")
		fmt.Fprintf(os.Stderr, "  tether -trace-dump calls.db    # Print a recorded session\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if *traceDump != "" {
		if err := dumpTrace(*traceDump); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dir := *configDir
	if dir == "" {
		dir = "."
	}
	cfg, err := session.FindAndLoad(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *serveMode {
		if err := serve(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	target := *pid
	if target == 0 {
		target = os.Getpid()
	}
	if err := inspect(cfg, target, *current); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serve exposes the demo object space on this process's socket until
// interrupted.
func serve(cfg *session.Config) error {
	space := demoSpace()
	worker := host.NewWorker(space)
	defer worker.Stop()

	l, err := session.Listen(cfg, os.Getpid())
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Printf("Serving demo space at %s\n", cfg.Endpoint.SocketPath(os.Getpid()))
	srv := wire.NewServer(func(sessionID string) (script.Service, func()) {
		svc := host.NewService(worker, sessionID)
		return svc, svc.EndSession
	})
	return srv.Serve(l)
}

// inspect connects, resolves a root object and prints its members.
func inspect(cfg *session.Config, pid int, kind string) error {
	s, err := session.Connect(cfg, pid)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.Current(kind)
	if err != nil {
		return err
	}
	fmt.Printf("%s:\n", kind)
	return printValue(v, "  ")
}

func printValue(v any, indent string) error {
	switch x := v.(type) {
	case *script.Object:
		names, err := x.Members()
		if err != nil {
			return err
		}
		for _, name := range names {
			mv, err := x.Get(name)
			if err != nil {
				return err
			}
			switch mv.(type) {
			case *script.Object, *script.Collection, *script.Method:
				fmt.Printf("%s%s:\n", indent, name)
				if err := printValue(mv, indent+"  "); err != nil {
					return err
				}
			default:
				fmt.Printf("%s%s = %v\n", indent, name, mv)
			}
		}
	case *script.Collection:
		n, err := x.Len()
		if err != nil {
			return err
		}
		keys, err := x.Keys()
		if err != nil {
			return err
		}
		fmt.Printf("%s(%d elements) %v\n", indent, n, keys)
	case *script.Method:
		doc, err := x.Doc()
		if err != nil {
			return err
		}
		if doc == "" {
			doc = "(method)"
		}
		fmt.Printf("%s%s\n", indent, doc)
	default:
		fmt.Printf("%s%v\n", indent, v)
	}
	return nil
}

// dumpTrace prints a recorded session, one call per line.
func dumpTrace(path string) error {
	rec, err := trace.Open(path)
	if err != nil {
		return err
	}
	defer rec.Close()

	calls, err := rec.Calls()
	if err != nil {
		return err
	}
	for _, c := range calls {
		status := "ok"
		if c.Err != "" {
			status = c.Err
		}
		fmt.Printf("%6d  %s  %-12s %-24s %-32s %s\n",
			c.ID, c.At.Format("15:04:05.000"), c.Op, c.Target, c.Detail, status)
	}
	fmt.Printf("%d calls\n", len(calls))
	return nil
}

// demoSpace builds a small clinical-flavored object graph for trying
// the bridge out without a real runtime attached.
func demoSpace() *host.Space {
	cases := host.NewColl()
	for _, name := range []string{"CASE 1", "CASE 2", "CASE 3"} {
		cases.Add(name, host.NewEntity().
			With("CaseName", name).
			With("Comment", ""))
	}

	dose := host.NewNumArray(ndarray.Float64, 4, 4)
	for i := range dose.Data {
		dose.Data[i] = byte(i)
	}

	patient := host.NewEntity().
		With("Name", "DOE^JANE").
		With("PatientID", "000042").
		With("Comment", "").
		With("Cases", cases).
		With("DoseGrid", dose).
		With("Save", &host.Method{
			Doc: "Saves the patient.",
			Fn: func(args map[string]any) (any, error) {
				return nil, nil
			},
		})
	patient.Doc = "The currently open patient."

	machines := host.NewColl()
	for _, name := range []string{"LINAC_A", "LINAC_B"} {
		machines.Add(name, host.NewEntity().With("MachineName", name))
	}

	space := host.NewSpace()
	space.SetRoot("Patient", patient)
	space.SetRoot("MachineDB", host.NewEntity().With("Machines", machines))
	return space
}
