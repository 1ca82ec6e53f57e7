// Command soundroom-validate exposes GridModel's room/grid validation
// rules as a standalone CLI, grounded on the teacher's small single-purpose
// conversion tool cmd/samoyed-ll2utm/main.go.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/soundroom/engine/internal/grid"
)

func main() {
	if len(os.Args) != 5 {
		usage()
		os.Exit(1)
	}

	width, errW := strconv.ParseFloat(os.Args[1], 64)
	depth, errD := strconv.ParseFloat(os.Args[2], 64)
	cols, errC := strconv.Atoi(os.Args[3])
	rows, errR := strconv.Atoi(os.Args[4])

	if errW != nil || errD != nil || errC != nil || errR != nil {
		fmt.Fprintln(os.Stderr, "all arguments must be numeric")
		usage()
		os.Exit(1)
	}

	result := grid.Validate(width, depth, cols, rows)

	fmt.Printf("width=%.2f depth=%.2f cols=%d rows=%d\n", result.Width, result.Depth, result.Cols, result.Rows)
	if result.Message != "" {
		fmt.Printf("note: %s\n", result.Message)
	}
}

func usage() {
	fmt.Printf("Room/grid validation\n\n")
	fmt.Printf("Usage:\n")
	fmt.Printf("\tsoundroom-validate  width_m  depth_m  cols  rows\n\n")
	fmt.Printf("Example:\n")
	fmt.Printf("\tsoundroom-validate 4.2 3.8 5 4\n")
}
