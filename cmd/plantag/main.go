// Command plantag runs the tagging pipeline without the desktop window:
// matching text against patterns, recognizing a region of a plan image,
// listing pages and editing a document's patterns.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newCLI(os.Stdout).rootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
