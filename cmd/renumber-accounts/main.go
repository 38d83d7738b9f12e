// Command renumber-accounts rewrites the keys of an account file to
// ACCOUNT0001, ACCOUNT0002, ... in file order.
//
//	renumber-accounts [-in .env.ACCOUNTS] [-out env.ACCOUNTS.OUTPUT]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nardis556/ikon-loadGenerator/pkg/accounts"
)

func main() {
	in := flag.String("in", ".env.ACCOUNTS", "account file to read")
	out := flag.String("out", "env.ACCOUNTS.OUTPUT", "file to write")
	flag.Parse()

	n, err := renumber(*in, *out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Renumbered %d accounts: %s -> %s\n", n, *in, *out)
}

func renumber(inPath, outPath string) (int, error) {
	src, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := accounts.Renumber(src, dst)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}
