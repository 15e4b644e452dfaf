package vm

import "fmt"

// Status is the outcome of a step or of a whole frame. Continue is the only
// non-terminal value.
type Status uint8

const (
	Continue Status = iota

	// success
	Stop
	Return
	SelfDestruct

	Revert

	// failure
	OutOfGas
	OutOfFunds
	OutOfBoundsAccess
	StackUnderflow
	StackOverflow
	InvalidJump
	InvalidOpcode
	CallTooDeep
	UnsupportedOperation
	FatalHostError
	StaticStateChange
	CreateCollision
	CodeSizeExceeded
	InvalidCodePrefix
	NonceOverflow
)

var statusNames = map[Status]string{
	Continue:             "Continue",
	Stop:                 "Stop",
	Return:               "Return",
	SelfDestruct:         "SelfDestruct",
	Revert:               "Revert",
	OutOfGas:             "OutOfGas",
	OutOfFunds:           "OutOfFunds",
	OutOfBoundsAccess:    "OutOfBoundsAccess",
	StackUnderflow:       "StackUnderflow",
	StackOverflow:        "StackOverflow",
	InvalidJump:          "InvalidJump",
	InvalidOpcode:        "InvalidOpcode",
	CallTooDeep:          "CallTooDeep",
	UnsupportedOperation: "UnsupportedOperation",
	FatalHostError:       "FatalHostError",
	StaticStateChange:    "StaticStateChange",
	CreateCollision:      "CreateCollision",
	CodeSizeExceeded:     "CodeSizeExceeded",
	InvalidCodePrefix:    "InvalidCodePrefix",
	NonceOverflow:        "NonceOverflow",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) IsTerminal() bool {
	return s != Continue
}

// IsSuccess reports the terminals whose state changes are kept.
func (s Status) IsSuccess() bool {
	return s == Stop || s == Return || s == SelfDestruct
}

func (s Status) IsRevert() bool {
	return s == Revert
}

// IsError reports failure terminals; these consume all gas given to the frame.
func (s Status) IsError() bool {
	return s.IsTerminal() && !s.IsSuccess() && !s.IsRevert()
}

func (s Status) IsFatal() bool {
	return s == FatalHostError
}
