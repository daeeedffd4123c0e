package eeprom

import "fmt"

// PageStatus is the tag stored in the first half-word of every page.
// The three on-flash values form a bit-clearing sequence, so a page can
// move Erased -> ReceiveData -> ValidPage with program operations alone.
type PageStatus uint16

const (
	Erased      PageStatus = 0xFFFF // page is empty and available
	ReceiveData PageStatus = 0xEEEE // page is the destination of an in-progress transfer
	ValidPage   PageStatus = 0x0000 // page holds the authoritative data
	Unknown     PageStatus = 0x0006 // any other bit pattern
)

func (s PageStatus) String() string {
	switch s {
	case Erased:
		return "ERASED"
	case ReceiveData:
		return "RECEIVE"
	case ValidPage:
		return "VALID"
	default:
		return fmt.Sprintf("UNKNOWN(%#04x)", uint16(s))
	}
}

// readStatus maps page p's header through the known tags.
func (e *EEPROM) readStatus(p int) PageStatus {
	switch s := PageStatus(e.dev.ReadHalfWord(e.cfg.pageBase(p))); s {
	case Erased, ReceiveData, ValidPage:
		return s
	default:
		return Unknown
	}
}

// markPage programs page p's header with the target status. Only
// bit-clearing transitions land without an intervening erase; callers
// respect the ordering, the codec does not check it.
func (e *EEPROM) markPage(p int, s PageStatus) error {
	return e.dev.ProgramHalfWord(e.cfg.pageBase(p), uint16(s))
}
