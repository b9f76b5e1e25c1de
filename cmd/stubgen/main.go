// stubgen generates interceptor-backed proxy types for Go interfaces.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to stubgen.toml or its directory (default: search upward)")
	flag.StringVar(&opts.output, "o", "", "Output file, or - for stdout (overrides [output])")
	flag.StringVar(&opts.pkgName, "pkg", "", "Package name of the generated file (overrides [output] package)")
	flag.StringVar(&opts.byRef, "by-ref", "", "By-reference policy for command-line targets: pointers or none")
	flag.StringVar(&opts.pattern, "pattern", "", "Proxy type name pattern for command-line targets (default %sProxy)")
	flag.BoolVar(&opts.disasm, "disasm", false, "Print the stub bytecode of every method instead of generating code")
	flag.BoolVar(&opts.noValidate, "no-validate", false, "Skip type-checking the generated file")
	flag.BoolVar(&opts.check, "check", false, "Exit with status 1 if the generated file is out of date")
	verbose := flag.Bool("v", false, "Verbose output")
	debug := flag.Bool("debug", false, "Debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stubgen [options] [package [Interface...]]\n\n")
		fmt.Fprintf(os.Stderr, "Generates proxy types whose methods forward every call to an interceptor.\n")
		fmt.Fprintf(os.Stderr, "Targets come from stubgen.toml unless a package is given on the command line.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stubgen                              # Generate everything in stubgen.toml\n")
		fmt.Fprintf(os.Stderr, "  stubgen -o - io Reader Writer        # Print proxies for io.Reader and io.Writer\n")
		fmt.Fprintf(os.Stderr, "  stubgen -disasm io ReadWriter        # Show the stub bytecode\n")
		fmt.Fprintf(os.Stderr, "  stubgen -check                       # Fail if the generated file is stale\n")
	}
	flag.Parse()
	opts.args = flag.Args()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	if *debug {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
