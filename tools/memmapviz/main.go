// Command memmapviz renders a physical memory map and the frames that the
// boot frame allocator hands out from it to a PNG image.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// defaultMap is a typical memory map reported by QEMU for a 128M machine.
const defaultMap = `
0x0000000000 0x000009fc00 available
0x000009fc00 0x00000a0000 reserved
0x00000f0000 0x0000100000 reserved
0x0000100000 0x0007fe0000 available
0x0007fe0000 0x0008000000 reserved
0x00fffc0000 0x0100000000 reserved
`

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[memmapviz] error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	var (
		mapFile = flag.String("map", "", "memory map file with \"<start> <end> <type>\" lines; a sample map is used when empty")
		frames  = flag.Uint64("frames", 64, "number of frames to allocate")
		outFile = flag.String("out", "memmap.png", "output PNG file")
	)
	flag.Parse()

	if err := run(*mapFile, *frames, *outFile); err != nil {
		exit(err)
	}
}

func run(mapFile string, frames uint64, outFile string) error {
	var src io.Reader = strings.NewReader(defaultMap)
	if mapFile != "" {
		f, err := os.Open(mapFile)
		if err != nil {
			return errors.Wrap(err, "opening memory map")
		}
		defer f.Close()
		src = f
	}

	regions, err := parseMemoryMap(src)
	if err != nil {
		return err
	}

	usage, allocated := simulateAllocations(regions, frames)
	if allocated < frames {
		fmt.Fprintf(os.Stderr, "[memmapviz] allocator ran out of frames after %d allocations\n", allocated)
	}

	return render(usage, allocated, outFile)
}
