package dispatch

import (
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/stabilizer"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

type Msg interface{ isDispatchMsg() }

// Detection is one classified frame.
type Detection struct {
	Detection stabilizer.RawDetection
}

func (Detection) isDispatchMsg() {}

type Reset struct{}

func (Reset) isDispatchMsg() {}

// Connect dials the peripheral. Empty host and zero port fall back to the
// configured defaults.
type Connect struct {
	Host string
	Port int
}

func (Connect) isDispatchMsg() {}

type Disconnect struct{}

func (Disconnect) isDispatchMsg() {}

type SetMode struct {
	Mode letters.Mode
}

func (SetMode) isDispatchMsg() {}

// Tap is a character typed directly on the presentation layer's keyboard.
type Tap struct {
	Char string
}

func (Tap) isDispatchMsg() {}

type ClearText struct{}

func (ClearText) isDispatchMsg() {}

type StartSession struct {
	Reply chan string // session ID; optional
}

func (StartSession) isDispatchMsg() {}

type StopSession struct {
	Reply chan struct{} // closed once everything is released; optional
}

func (StopSession) isDispatchMsg() {}

type GetState struct {
	Reply chan pub.View
}

func (GetState) isDispatchMsg() {}

type Shutdown struct{}

func (Shutdown) isDispatchMsg() {}

// callback runs a closure on the loop goroutine.
type callback func()

func (callback) isDispatchMsg() {}
