package main

import (
	"debug/elf"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

func elfRedirectTableOffset(imgFile string) (uint64, error) {
	f, err := elf.Open(imgFile)
	if err != nil {
		return 0, errors.Wrap(err, imgFile)
	}
	defer f.Close()

	redirectsSection := f.Section(".goredirectstbl")
	if redirectsSection == nil {
		return 0, errors.Errorf("%s: missing .goredirectstbl section", imgFile)
	}

	return redirectsSection.Offset, nil
}

func elfWriteRedirectTable(redirects []*redirect, imgFile string) error {
	redirectTableOffset, err := elfRedirectTableOffset(imgFile)
	if err != nil {
		return err
	}

	// Open kernel image file and seek to table offset
	f, err := os.OpenFile(imgFile, os.O_WRONLY, os.ModeType)
	if err != nil {
		return errors.Wrap(err, imgFile)
	}
	defer f.Close()

	if _, err = f.Seek(int64(redirectTableOffset), io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking to redirect table")
	}

	for _, redirect := range redirects {
		if err = binary.Write(f, binary.LittleEndian, redirect.srcVMA); err != nil {
			return errors.Wrap(err, "writing redirect table")
		}
		if err = binary.Write(f, binary.LittleEndian, redirect.dstVMA); err != nil {
			return errors.Wrap(err, "writing redirect table")
		}
	}

	return nil
}

func elfResolveRedirectSymbols(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return errors.Wrap(err, imgFile)
	}
	defer f.Close()

	symbols, err := f.Symbols()
	if err != nil {
		return errors.Wrapf(err, "%s: reading symbols", imgFile)
	}

	for _, redirect := range redirects {
		for _, symbol := range symbols {
			if symbol.Name == redirect.src {
				redirect.srcVMA = symbol.Value
			}
			if symbol.Name == redirect.dst {
				redirect.dstVMA = symbol.Value
			}
		}

		switch {
		case redirect.srcVMA == 0:
			return errors.Errorf("%s: could not locate address of %q", imgFile, redirect.src)
		case redirect.dstVMA == 0:
			return errors.Errorf("%s: could not locate address of %q", imgFile, redirect.dst)
		}
	}

	return nil
}
