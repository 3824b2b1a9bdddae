package engine

// Button is one bit of ControllerState.Buttons.
type Button uint32

const (
	ButtonCross     Button = 1 << 0
	ButtonMoon      Button = 1 << 1
	ButtonBox       Button = 1 << 2
	ButtonPyramid   Button = 1 << 3
	ButtonDPadLeft  Button = 1 << 4
	ButtonDPadRight Button = 1 << 5
	ButtonDPadUp    Button = 1 << 6
	ButtonDPadDown  Button = 1 << 7
	ButtonL1        Button = 1 << 8
	ButtonR1        Button = 1 << 9
	ButtonL3        Button = 1 << 10
	ButtonR3        Button = 1 << 11
	ButtonOptions   Button = 1 << 12
	ButtonShare     Button = 1 << 13
	ButtonTouchpad  Button = 1 << 14
	ButtonPS        Button = 1 << 15

	// Analog triggers are also reported as buttons while pressed.
	ButtonL2 Button = 1 << 16
	ButtonR2 Button = 1 << 17
)

// MaxTouches is the number of simultaneous touchpad contacts.
const MaxTouches = 2

// Touch is one touchpad contact. ID is -1 for an unused slot.
type Touch struct {
	X  uint16
	Y  uint16
	ID int8
}

// ControllerState is the complete input snapshot pushed to an engine.
type ControllerState struct {
	Buttons uint32
	L2      uint8
	R2      uint8
	LeftX   int16
	LeftY   int16
	RightX  int16
	RightY  int16

	TouchIDNext uint8
	Touches     [MaxTouches]Touch

	GyroX, GyroY, GyroZ                float32
	AccelX, AccelY, AccelZ             float32
	OrientX, OrientY, OrientZ, OrientW float32
}

// IdleControllerState returns the neutral state: nothing pressed, sticks
// centred, no touches and an identity orientation.
func IdleControllerState() ControllerState {
	s := ControllerState{OrientW: 1}
	for i := range s.Touches {
		s.Touches[i].ID = -1
	}
	return s
}

// Has reports whether b is pressed.
func (s ControllerState) Has(b Button) bool {
	return s.Buttons&uint32(b) != 0
}
