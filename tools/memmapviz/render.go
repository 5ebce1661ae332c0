package main

import (
	"fmt"

	"taskos/kernel/hal/multiboot"
	"taskos/kernel/mm"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

const (
	imageWidth = 1024
	rowHeight  = 32
	margin     = 16
	labelWidth = 420
)

// regionColor returns the RGB color used for a region type.
func regionColor(t multiboot.MemoryEntryType) (float64, float64, float64) {
	switch t {
	case multiboot.MemAvailable:
		return 0.30, 0.69, 0.31
	case multiboot.MemAcpiReclaimable:
		return 0.13, 0.59, 0.95
	case multiboot.MemNvs:
		return 0.61, 0.15, 0.69
	default:
		return 0.62, 0.62, 0.62
	}
}

// render draws one row per region. Bar lengths are relative to the largest
// region; the part of an available region that the allocator handed out is
// drawn in a darker shade.
func render(usage []regionUsage, allocated uint64, outFile string) error {
	height := margin*3 + rowHeight*(len(usage)+1)
	dc := gg.NewContext(imageWidth, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	var largest uint64
	for _, u := range usage {
		if u.region.Length > largest {
			largest = u.region.Length
		}
	}

	barWidth := float64(imageWidth - labelWidth - 2*margin)
	for row, u := range usage {
		y := float64(margin + row*rowHeight)

		dc.SetRGB(0, 0, 0)
		dc.DrawString(
			fmt.Sprintf("[0x%010x - 0x%010x] %s", u.region.PhysAddress, u.region.End(), u.region.Type.String()),
			margin, y+rowHeight/2,
		)

		w := barWidth
		if largest > 0 {
			w = barWidth * float64(u.region.Length) / float64(largest)
		}
		r, g, b := regionColor(u.region.Type)
		dc.SetRGB(r, g, b)
		dc.DrawRectangle(labelWidth+margin, y+4, w, rowHeight-8)
		dc.Fill()

		if regionFrames := u.region.Length >> mm.PageShift; u.allocated > 0 && regionFrames > 0 {
			dc.SetRGB(r*0.5, g*0.5, b*0.5)
			dc.DrawRectangle(labelWidth+margin, y+4, w*float64(u.allocated)/float64(regionFrames), rowHeight-8)
			dc.Fill()
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawString(
		fmt.Sprintf("allocated frames: %d", allocated),
		margin, float64(margin*2+len(usage)*rowHeight+rowHeight/2),
	)

	if err := dc.SavePNG(outFile); err != nil {
		return errors.Wrapf(err, "writing %s", outFile)
	}

	return nil
}
