// Command shmvars-debug prints the header framing of named shared-memory
// segments.
//
// Usage:
//
//	shmvars-debug [-dir /dev/shm] name...
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/srediag/shmvars/pkg/segment"
)

func main() {
	dir := flag.String("dir", "", "segment directory (default platform segment dir)")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: shmvars-debug [-dir dir] name...")
		os.Exit(2)
	}
	exit := 0
	for _, name := range flag.Args() {
		info, err := segment.Describe(*dir, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			exit = 1
			continue
		}
		fmt.Println(info)
	}
	os.Exit(exit)
}
