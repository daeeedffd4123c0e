package eeprom

import (
	"errors"

	"github.com/newhook/eeprom/flash"
)

var (
	// ErrNoValidPage means no page carries the ValidPage status. Only
	// possible before Init or after an unrecovered flash failure.
	ErrNoValidPage = errors.New("eeprom: no valid page")

	// ErrNotFound means the virtual address has never been written on
	// the current valid page.
	ErrNotFound = errors.New("eeprom: variable not found")

	// ErrInvalidAddress means the reserved virtual address 0xFFFF was
	// passed to Read or Write.
	ErrInvalidAddress = errors.New("eeprom: virtual address 0xFFFF is reserved")

	// Internal sentinel: the active page has no free slot. Always
	// converted into a transfer, never surfaced.
	errPageFull = errors.New("eeprom: page full")
)

const noPage = -1

// EEPROM is one emulated EEPROM instance over a window of flash pages.
// Updates are appended as records; when the active page fills up the
// live values are compacted onto the next page of the ring and the old
// page is erased, spreading erase cycles across the window.
//
// Callers must serialize access; the instance is re-entrant only
// against power loss, not against concurrent callers.
type EEPROM struct {
	dev flash.Device
	cfg Config
}

// New creates an instance over dev. Init must run before Read or Write.
func New(dev flash.Device, cfg Config) (*EEPROM, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &EEPROM{dev: dev, cfg: cfg}, nil
}

// NumPages returns the number of pages in the window.
func (e *EEPROM) NumPages() int {
	return e.cfg.PageNum
}

// StatusOf returns the decoded header status of page p.
func (e *EEPROM) StatusOf(p int) PageStatus {
	return e.readStatus(p)
}

// Keys returns the configured virtual address table.
func (e *EEPROM) Keys() []uint16 {
	return e.cfg.VirtAddrs
}

// ActivePage returns the page currently elected for reads, or -1.
func (e *EEPROM) ActivePage() int {
	return e.findValidPage(false)
}

// findValidPage elects the authoritative page. Reads use the unique
// ValidPage. Writes during a transfer must land on the in-progress
// destination, so a ReceiveData ring-successor wins over the ValidPage
// itself.
func (e *EEPROM) findValidPage(forWrite bool) int {
	status := make([]PageStatus, e.cfg.PageNum)
	for p := range status {
		status[p] = e.readStatus(p)
	}
	for p, s := range status {
		if s != ValidPage {
			continue
		}
		if forWrite {
			if next := e.cfg.nextPage(p); status[next] == ReceiveData {
				return next
			}
		}
		return p
	}
	return noPage
}

// Read returns the latest value written for virtAddr.
func (e *EEPROM) Read(virtAddr uint16) (uint16, error) {
	if virtAddr == invalidVirtAddr {
		return 0, ErrInvalidAddress
	}
	p := e.findValidPage(false)
	if p == noPage {
		return 0, ErrNoValidPage
	}
	if v, ok := e.findLatest(p, virtAddr); ok {
		return v, nil
	}
	return 0, ErrNotFound
}

// writeRecord appends (virtAddr, value) on the write-elected page.
func (e *EEPROM) writeRecord(virtAddr, value uint16) error {
	p := e.findValidPage(true)
	if p == noPage {
		return ErrNoValidPage
	}
	return e.appendRecord(p, virtAddr, value)
}

// Write stores a new value for virtAddr, rotating to the next page when
// the active one is full. A power loss after the transfer's first flash
// operation but before the triggering record lands silently drops this
// write; recovery restores the previous value and the caller may retry.
func (e *EEPROM) Write(virtAddr, value uint16) error {
	if virtAddr == invalidVirtAddr {
		return ErrInvalidAddress
	}
	err := e.writeRecord(virtAddr, value)
	if errors.Is(err, errPageFull) {
		return e.transfer(virtAddr, value)
	}
	return err
}

// transfer compacts the live values onto the ring-successor and swings
// the valid designation. The step order is the crash-safety argument:
// the source is erased before the destination is promoted, so two
// ValidPage headers can never coexist, and every interruption point
// leaves a state Init resolves deterministically.
func (e *EEPROM) transfer(virtAddr, value uint16) error {
	src := e.findValidPage(false)
	if src == noPage {
		return ErrNoValidPage
	}
	dst := e.cfg.nextPage(src)

	if err := e.markPage(dst, ReceiveData); err != nil {
		return err
	}

	// The triggering write lands first so it is durable before any
	// copying starts. writeRecord now elects dst.
	if err := e.writeRecord(virtAddr, value); err != nil {
		return err
	}

	for _, key := range e.cfg.VirtAddrs {
		if key == virtAddr {
			continue
		}
		v, ok := e.findLatest(src, key)
		if !ok {
			continue
		}
		if err := e.writeRecord(key, v); err != nil {
			return err
		}
	}

	if err := e.dev.ErasePage(e.cfg.pageBase(src)); err != nil {
		return err
	}
	return e.markPage(dst, ValidPage)
}

// Init restores the pages to a legal configuration after an unknown
// interruption. It must run once before Read or Write and is
// idempotent: a second run without intervening writes changes nothing.
func (e *EEPROM) Init() error {
	validIdx, receiveIdx, anomaly := noPage, noPage, noPage
	status := make([]PageStatus, e.cfg.PageNum)
	for p := range status {
		status[p] = e.readStatus(p)
		switch status[p] {
		case ValidPage:
			if validIdx == noPage {
				validIdx = p
			} else {
				anomaly = p
			}
		case ReceiveData:
			if receiveIdx == noPage {
				receiveIdx = p
			} else {
				anomaly = p
			}
		case Unknown:
			anomaly = p
		}
	}

	switch {
	case anomaly != noPage:
		// More than one valid or receive page, or garbage in a header.
		// Data is lost; start over on the last anomalous page.
		return e.format(anomaly)

	case validIdx != noPage:
		next := e.cfg.nextPage(validIdx)
		if receiveIdx != noPage && receiveIdx != next {
			// A receive page anywhere but the successor cannot result
			// from the transfer protocol.
			return e.format(receiveIdx)
		}
		if status[next] == ReceiveData {
			// Transfer interrupted before the source was erased.
			return e.recoverTransfer(validIdx, next)
		}
		// Steady state. Erase the successor defensively; on an
		// already-erased page this is a no-op.
		return e.dev.ErasePage(e.cfg.pageBase(next))

	case receiveIdx != noPage:
		// Transfer interrupted between erasing the source and
		// promoting the destination; every other page is erased.
		// The same state also follows a crash during the first-ever
		// transfer, and the action is identical.
		if err := e.markPage(receiveIdx, ValidPage); err != nil {
			return err
		}
		return e.dev.ErasePage(e.cfg.pageBase(e.cfg.nextPage(receiveIdx)))

	default:
		// Fresh or fully erased array.
		return e.format(0)
	}
}

// recoverTransfer completes a transfer interrupted while src was still
// valid. Keys already durable on dst keep their values there, so a
// triggering record that landed before the crash is not shadowed by the
// stale copy on src; the remaining keys are copied over.
func (e *EEPROM) recoverTransfer(src, dst int) error {
	for _, key := range e.cfg.VirtAddrs {
		if _, ok := e.findLatest(dst, key); ok {
			continue
		}
		v, ok := e.findLatest(src, key)
		if !ok {
			continue
		}
		if err := e.writeRecord(key, v); err != nil {
			return err
		}
	}
	if err := e.dev.ErasePage(e.cfg.pageBase(src)); err != nil {
		return err
	}
	return e.markPage(dst, ValidPage)
}

// format erases every page and marks initial as the valid one.
func (e *EEPROM) format(initial int) error {
	for p := 0; p < e.cfg.PageNum; p++ {
		if err := e.dev.ErasePage(e.cfg.pageBase(p)); err != nil {
			return err
		}
		if p == initial {
			if err := e.markPage(p, ValidPage); err != nil {
				return err
			}
		}
	}
	return nil
}
