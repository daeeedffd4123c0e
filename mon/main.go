package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/newhook/eeprom/eeprom"
	"github.com/newhook/eeprom/flash"
	"github.com/newhook/eeprom/mon/inspector"
)

// parseVars parses a comma-separated list of hex virtual addresses.
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
	imageFile := flag.String("i", "eeprom.img", "Flash image file")
	base := flag.Uint64("base", 0x08002800, "Window base address")
	pageSize := flag.Uint64("pagesize", 1024, "Page size in bytes")
	pages := flag.Int("pages", 3, "Number of pages")
	vars := flag.String("vars", "0001,0002", "Comma-separated hex virtual addresses")
	flag.Parse()

	keys, err := parseVars(*vars)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	dev := flash.NewArray(uint32(*base), uint32(*pages)*uint32(*pageSize), uint32(*pageSize))
	if data, err := os.ReadFile(*imageFile); err == nil {
		if err := dev.LoadImage(data); err != nil {
			fmt.Printf("Error loading image: %v\n", err)
			return
		}
	}

	ee, err := eeprom.New(dev, eeprom.Config{
		StartAddress: uint32(*base),
		PageSize:     uint32(*pageSize),
		PageNum:      *pages,
		VirtAddrs:    keys,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := ee.Init(); err != nil {
		fmt.Printf("Error initializing store: %v\n", err)
		return
	}

	p := tea.NewProgram(inspector.New(dev, ee, *imageFile))
	if err := p.Start(); err != nil {
		fmt.Printf("Error running program: %v", err)
	}
}
