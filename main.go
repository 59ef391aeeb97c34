package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"wisp/pkg/asm"
	"wisp/pkg/peephole"
	"wisp/pkg/sim"
)

func main() {
	inPath := flag.String("in", "", "input assembly file path")
	outPath := flag.String("out", "", "output binary file path (default: input with .bin extension)")
	optimize := flag.Bool("O", false, "run the peephole optimizer over the source before assembling")
	runProgram := flag.Bool("run", false, "run the assembled image on the simulator")
	runBinPath := flag.String("run-bin", "", "run an existing binary image on the simulator")
	entry := flag.String("entry", "", "entry point for -run: a label or a hex address (default: the reset vector)")
	maxSteps := flag.Int("max-steps", 10_000_000, "instruction budget for -run")
	flag.Parse()

	if *runProgram && *runBinPath != "" {
		fmt.Fprintln(os.Stderr, "use either -run or -run-bin, not both")
		os.Exit(2)
	}

	var image []byte
	var symbols *asm.Assembler
	if *inPath != "" {
		source, err := os.ReadFile(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read input file %q: %v\n", *inPath, err)
			os.Exit(1)
		}

		text := string(source)
		if *optimize {
			text = peephole.Optimize(text)
		}

		symbols = asm.NewAssembler()
		image, _, err = symbols.Assemble(text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
			os.Exit(1)
		}

		output := *outPath
		if output == "" {
			output = defaultOutputPath(*inPath)
		}
		if err := os.WriteFile(output, image, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write binary file %q: %v\n", output, err)
			os.Exit(1)
		}
		fmt.Printf("assembled %d bytes -> %s\n", len(image), output)
	}

	if *inPath == "" && *runBinPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to assemble, or -run-bin <file> to run an existing binary")
		flag.Usage()
		os.Exit(2)
	}

	if *runBinPath != "" {
		var err error
		image, err = os.ReadFile(*runBinPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read binary file %q: %v\n", *runBinPath, err)
			os.Exit(1)
		}
	} else if !*runProgram {
		return
	}

	if len(image) > sim.MemSize {
		fmt.Fprintf(os.Stderr, "program too large for memory: %d bytes > %d bytes\n", len(image), sim.MemSize)
		os.Exit(1)
	}

	c := sim.New(image)
	if err := execute(c, symbols, *entry, *maxSteps); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(
		"run complete: PC=$%04X A=$%02X X=$%02X Y=$%02X SP=$%02X steps=%d\n",
		c.PC, c.A, c.X, c.Y, c.SP, c.Steps,
	)
}

// execute picks the entry point and runs the machine to completion. A named
// or numeric entry runs as a subroutine call; otherwise the machine starts
// from its reset vector.
func execute(c *sim.CPU, symbols *asm.Assembler, entry string, maxSteps int) error {
	if entry != "" {
		addr, err := resolveEntry(symbols, entry)
		if err != nil {
			return err
		}
		return c.Call(addr, maxSteps)
	}
	if c.Read16(sim.VecReset) == 0 {
		return fmt.Errorf("no reset vector in image; use -entry to name a start address")
	}
	c.Reset()
	return c.Run(maxSteps)
}

func resolveEntry(symbols *asm.Assembler, entry string) (uint16, error) {
	if symbols != nil {
		if addr, ok := symbols.Symbol(entry); ok {
			return addr, nil
		}
	}
	s := strings.TrimPrefix(entry, "$")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("entry %q is neither a known label nor a hex address", entry)
	}
	return uint16(v), nil
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".bin"
	}
	return strings.TrimSuffix(inPath, ext) + ".bin"
}
