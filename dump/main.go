package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/newhook/eeprom/eeprom"
	"github.com/newhook/eeprom/flash"
)

func parseVars(s string) ([]uint16, error) {
	var vars []uint16
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "$") {
			part = "0x" + part[1:]
		} else if !strings.HasPrefix(part, "0x") {
			part = "0x" + part
		}
		v, err := strconv.ParseUint(part, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("bad virtual address %q: %v", part, err)
		}
		vars = append(vars, uint16(v))
	}
	return vars, nil
}

func main() {
	// Command line flags
	imageFile := flag.String("i", "", "Flash image file")
	base := flag.Uint64("base", 0x08002800, "Window base address")
	pageSize := flag.Uint64("pagesize", 1024, "Page size in bytes")
	pages := flag.Int("pages", 3, "Number of pages")
	vars := flag.String("vars", "0001,0002", "Comma-separated hex virtual addresses")
	flag.Parse()

	keys, err := parseVars(*vars)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*imageFile)
	if err != nil {
		fmt.Printf("Error reading image: %v\n", err)
		os.Exit(1)
	}

	dev := flash.NewArray(uint32(*base), uint32(*pages)*uint32(*pageSize), uint32(*pageSize))
	if err := dev.LoadImage(data); err != nil {
		fmt.Printf("Error loading image: %v\n", err)
		os.Exit(1)
	}

	ee, err := eeprom.New(dev, eeprom.Config{
		StartAddress: uint32(*base),
		PageSize:     uint32(*pageSize),
		PageNum:      *pages,
		VirtAddrs:    keys,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Dumping never mutates the image, so the store is inspected as-is
	// without running recovery.
	valids, corrupt := 0, false
	for p := 0; p < ee.NumPages(); p++ {
		status := ee.StatusOf(p)
		recs := ee.Records(p)
		fmt.Printf("page %d @ %#08x: %-14s %d records\n", p, uint32(*base)+uint32(p)*uint32(*pageSize), status, len(recs))
		for _, r := range recs {
			fmt.Printf("  +%04X  %04X = %04X\n", r.Offset, r.VirtAddr, r.Value)
		}
		switch status {
		case eeprom.ValidPage:
			valids++
		case eeprom.Unknown:
			corrupt = true
		}
	}
	if valids > 1 {
		corrupt = true
	}

	fmt.Println()
	for _, key := range keys {
		v, err := ee.Read(key)
		if err != nil {
			fmt.Printf("%04X = ---- (%v)\n", key, err)
			continue
		}
		fmt.Printf("%04X = %04X\n", key, v)
	}

	if corrupt {
		fmt.Println("\nimage is corrupt: run init to recover")
		os.Exit(1)
	}
}
