package eeprom

import (
	"errors"
	"fmt"
	"testing"

	"github.com/newhook/eeprom/flash"
	"github.com/stretchr/testify/assert"
)

// checkInvariants asserts the page-state invariants that must hold
// between API calls: at most one valid page, at most one receive page,
// and a receive page only alongside a valid page or all-erased peers.
func checkInvariants(t *testing.T, e *EEPROM) {
	t.Helper()
	assert := assert.New(t)

	valids, receives := 0, 0
	var receiveIdx int
	for p := 0; p < e.NumPages(); p++ {
		switch e.StatusOf(p) {
		case ValidPage:
			valids++
		case ReceiveData:
			receives++
			receiveIdx = p
		}
	}
	assert.LessOrEqual(valids, 1, "more than one valid page")
	assert.LessOrEqual(receives, 1, "more than one receive page")
	if receives == 1 && valids == 0 {
		for p := 0; p < e.NumPages(); p++ {
			if p != receiveIdx {
				assert.Equal(Erased, e.StatusOf(p), "receive page with non-erased peer")
			}
		}
	}
}

func TestCrashBetweenEraseAndPromote(t *testing.T) {
	assert := assert.New(t)
	dev, e := newTestStore(t, 3, 32, []uint16{0x0001, 0x0002})

	assert.NoError(e.Init())
	for i := 0; i < 7; i++ {
		assert.NoError(e.Write(0x0001, uint16(i)))
	}

	// The transfer performs: mark receive, program value, program
	// address, copy value, copy address, erase source, promote. Cut
	// power right before the promote.
	dev.PowerLossAfter(6)
	assert.Error(e.Write(0x0002, 0xAAAA))

	assert.Equal(uint16(0xFFFF), dev.ReadHalfWord(dev.Base()))
	assert.Equal(uint16(0xEEEE), dev.ReadHalfWord(dev.Base()+32))

	dev.Revive()
	assert.NoError(e.Init())

	assert.Equal(ValidPage, e.StatusOf(1))
	checkInvariants(t, e)

	v, err := e.Read(0x0001)
	assert.NoError(err)
	assert.Equal(uint16(6), v)

	v, err = e.Read(0x0002)
	assert.NoError(err)
	assert.Equal(uint16(0xAAAA), v, "the triggering record was durable before the crash")
}

func TestInitIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dev *flash.Array, e *EEPROM)
	}{
		{
			name:  "Fresh array",
			setup: func(t *testing.T, dev *flash.Array, e *EEPROM) {},
		},
		{
			name: "Steady state with data",
			setup: func(t *testing.T, dev *flash.Array, e *EEPROM) {
				assert.NoError(t, e.Init())
				assert.NoError(t, e.Write(0x0001, 0x1234))
			},
		},
		{
			name: "Interrupted mid copy",
			setup: func(t *testing.T, dev *flash.Array, e *EEPROM) {
				assert.NoError(t, e.Init())
				for i := 0; i < 7; i++ {
					assert.NoError(t, e.Write(0x0001, uint16(i)))
				}
				// Fail after the triggering record, during the copy
				dev.PowerLossAfter(4)
				assert.Error(t, e.Write(0x0002, 0xAAAA))
				dev.Revive()
			},
		},
		{
			name: "Interrupted before promote",
			setup: func(t *testing.T, dev *flash.Array, e *EEPROM) {
				assert.NoError(t, e.Init())
				for i := 0; i < 7; i++ {
					assert.NoError(t, e.Write(0x0001, uint16(i)))
				}
				dev.PowerLossAfter(6)
				assert.Error(t, e.Write(0x0002, 0xAAAA))
				dev.Revive()
			},
		},
		{
			name: "Corrupt double valid",
			setup: func(t *testing.T, dev *flash.Array, e *EEPROM) {
				assert.NoError(t, e.Init())
				assert.NoError(t, dev.ProgramHalfWord(dev.Base()+32, uint16(ValidPage)))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := assert.New(t)
			dev, e := newTestStore(t, 3, 32, []uint16{0x0001, 0x0002})
			test.setup(t, dev, e)

			assert.NoError(e.Init())
			after := append([]byte(nil), dev.Bytes()...)

			assert.NoError(e.Init())
			assert.Equal(after, dev.Bytes(), "second init must not change flash")
			checkInvariants(t, e)
		})
	}
}

func TestFlashErrorSurfaced(t *testing.T) {
	assert := assert.New(t)
	dev, e := newTestStore(t, 3, 32, []uint16{0x0001})

	assert.NoError(e.Init())

	dev.FailAfter(0, flash.CodeWriteProtect)
	err := e.Write(0x0001, 0x1234)

	var ferr *flash.Error
	assert.True(errors.As(err, &ferr), "driver error must surface verbatim")
	assert.Equal(flash.CodeWriteProtect, ferr.Code)

	// The failed program left nothing visible
	_, err = e.Read(0x0001)
	assert.ErrorIs(err, ErrNotFound)
}

// writeScript is a deterministic write sequence that drives the store
// through two full rotations on a 3x32 window.
var writeScript = []struct {
	addr  uint16
	value uint16
}{
	{0x0001, 0x0010}, {0x0002, 0x0020}, {0x0003, 0x0030},
	{0x0001, 0x0011}, {0x0002, 0x0021}, {0x0003, 0x0031},
	{0x0001, 0x0012},
	{0x0002, 0x0022}, // first transfer
	{0x0003, 0x0032}, {0x0001, 0x0013}, {0x0002, 0x0023},
	{0x0003, 0x0033},
	{0x0001, 0x0014}, // second transfer
	{0x0002, 0x0024},
}

func TestPowerLossAtEveryBoundary(t *testing.T) {
	keys := []uint16{0x0001, 0x0002, 0x0003}

	// Dry run to learn how many flash operations the script performs.
	dev, e := newTestStore(t, 3, 32, keys)
	assert.NoError(t, e.Init())
	dev.ResetOps()
	for _, w := range writeScript {
		assert.NoError(t, e.Write(w.addr, w.value))
	}
	total := len(dev.Ops())

	for cut := 0; cut < total; cut++ {
		t.Run(fmt.Sprintf("cut=%d", cut), func(t *testing.T) {
			assert := assert.New(t)
			dev, e := newTestStore(t, 3, 32, keys)
			assert.NoError(e.Init())

			committed := map[uint16]uint16{}
			var attempted *struct{ addr, value uint16 }

			dev.PowerLossAfter(cut)
			for i := range writeScript {
				w := writeScript[i]
				if err := e.Write(w.addr, w.value); err != nil {
					attempted = &struct{ addr, value uint16 }{w.addr, w.value}
					break
				}
				committed[w.addr] = w.value
			}
			assert.NotNil(attempted, "the cut must land inside the script")

			dev.Revive()
			assert.NoError(e.Init())
			checkInvariants(t, e)

			for _, key := range keys {
				v, err := e.Read(key)
				want, wasCommitted := committed[key]
				if errors.Is(err, ErrNotFound) {
					assert.False(wasCommitted, "committed write of %#04x lost", key)
					continue
				}
				assert.NoError(err)
				if wasCommitted && v == want {
					continue
				}
				// The only other legal value is the interrupted write
				assert.NotNil(attempted)
				assert.Equal(attempted.addr, key)
				assert.Equal(attempted.value, v)
			}
		})
	}
}

func TestPowerLossDuringRecovery(t *testing.T) {
	keys := []uint16{0x0001, 0x0002, 0x0003}

	// Build the interrupted-transfer state once per cut, then crash the
	// recovery itself at every boundary and check that the next Init
	// still converges.
	buildCrashState := func(t *testing.T) (*flash.Array, *EEPROM) {
		dev, e := newTestStore(t, 3, 32, keys)
		assert.NoError(t, e.Init())
		for i := 0; i < 6; i++ {
			assert.NoError(t, e.Write(keys[i%3], uint16(0x0100+i)))
		}
		assert.NoError(t, e.Write(0x0001, 0x0200))
		// Page 0 is full; cut power after the triggering record lands
		dev.PowerLossAfter(3)
		assert.Error(t, e.Write(0x0002, 0x0300))
		dev.Revive()
		return dev, e
	}

	dev, e := buildCrashState(t)
	dev.ResetOps()
	assert.NoError(t, e.Init())
	total := len(dev.Ops())

	for cut := 0; cut < total; cut++ {
		t.Run(fmt.Sprintf("cut=%d", cut), func(t *testing.T) {
			assert := assert.New(t)
			dev, e := buildCrashState(t)

			dev.PowerLossAfter(cut)
			assert.Error(e.Init())

			dev.Revive()
			assert.NoError(e.Init())
			checkInvariants(t, e)

			// The triggering record was durable before the first crash
			v, err := e.Read(0x0002)
			assert.NoError(err)
			assert.Equal(uint16(0x0300), v)

			v, err = e.Read(0x0001)
			assert.NoError(err)
			assert.Equal(uint16(0x0200), v)

			v, err = e.Read(0x0003)
			assert.NoError(err)
			assert.Equal(uint16(0x0105), v)
		})
	}
}
