package flash

import "fmt"

// Controller status codes reported when a program or erase operation fails
type Code uint8

const (
	CodeBusy         Code = 0x01
	CodeProgramError Code = 0x04
	CodeWriteProtect Code = 0x10
	CodeTimeout      Code = 0x20
	CodePowerLoss    Code = 0x80
)

func (c Code) String() string {
	switch c {
	case CodeBusy:
		return "busy"
	case CodeProgramError:
		return "program error"
	case CodeWriteProtect:
		return "write protected"
	case CodeTimeout:
		return "timeout"
	case CodePowerLoss:
		return "power loss"
	default:
		return fmt.Sprintf("code %#02x", uint8(c))
	}
}

// Error is a failed flash controller operation. The code is surfaced
// verbatim to callers of the storage layer.
type Error struct {
	Op   string
	Addr uint32
	Code Code
}

func (e *Error) Error() string {
	return fmt.Sprintf("flash: %s at %#08x: %s", e.Op, e.Addr, e.Code)
}

// Device is the flash controller surface the storage layer is built on.
// Program operations honor only 1->0 bit transitions; erase returns an
// entire page to all-1s. Both block until the controller reports
// completion. Erasing a page that is already erased must succeed; a
// driver that rejects redundant erase needs a wrapper.
type Device interface {
	// ProgramHalfWord writes a 2-byte value at a half-word aligned address.
	ProgramHalfWord(addr uint32, value uint16) error

	// ErasePage clears one physical page to all-1s. addr is the page base.
	ErasePage(addr uint32) error

	// ReadHalfWord returns the 2-byte value at a half-word aligned address.
	ReadHalfWord(addr uint32) uint16

	// ReadWord returns the 4-byte value at a half-word aligned address.
	// Used to detect unwritten record slots in a single read.
	ReadWord(addr uint32) uint32
}
