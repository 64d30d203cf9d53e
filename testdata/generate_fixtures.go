//go:build ignore

// This program generates sample GSD report workbooks under
// testdata/raw_excel for manual runs of gsd.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/klytics/gsdkit/internal/fixture"
)

func main() {
	dir := flag.String("dir", "testdata/raw_excel", "output directory")
	from := flag.Int("from", 2013, "first fiscal year")
	to := flag.Int("to", 2016, "last fiscal year")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", *dir, err)
		os.Exit(1)
	}

	for fy := *from; fy <= *to; fy++ {
		path, err := fixture.WriteReport(*dir, fy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating FY%d: %v\n", fy, err)
			os.Exit(1)
		}
		fmt.Println(path)
	}

	fmt.Println("Test fixtures generated successfully.")
}
