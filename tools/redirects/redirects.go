// Command redirects populates the redirect table of a kernel image. Kernel
// functions annotated with a "//go:redirect-from <symbol>" comment replace
// the named Go runtime symbol at boot; this tool resolves the address of each
// pair and writes it to the .goredirectstbl ELF section.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[redirects] error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	kernelDir := flag.String("kernel-dir", "kernel", "folder with the kernel sources, relative to the module root")
	flag.Parse()

	if matches, _ := filepath.Glob("go.mod"); len(matches) != 1 {
		exit(errors.New("this tool must be run from the module root folder"))
	}

	if len(flag.Args()) == 0 {
		exit(errors.New("missing command"))
	}

	cmd := flag.Arg(0)
	var imgFile string
	switch cmd {
	case "count", "list":
	case "populate-table":
		if len(flag.Args()) != 2 {
			exit(errors.New("populate-table requires the path to the kernel image as an argument"))
		}
		imgFile = flag.Arg(1)
	default:
		exit(errors.Errorf("unknown command %q", cmd))
	}

	modPath, err := modulePath("go.mod")
	if err != nil {
		exit(err)
	}

	goFiles, err := collectGoFiles(*kernelDir)
	if err != nil {
		exit(err)
	}

	redirects, err := findRedirects(modPath, goFiles)
	if err != nil {
		exit(err)
	}

	switch cmd {
	case "count":
		fmt.Printf("%d", len(redirects))
		return
	case "list":
		for _, r := range redirects {
			fmt.Printf("%s -> %s\n", r.src, r.dst)
		}
		return
	}

	if err = elfResolveRedirectSymbols(redirects, imgFile); err != nil {
		exit(err)
	}

	if err = elfWriteRedirectTable(redirects, imgFile); err != nil {
		exit(err)
	}
}
