package mux

import (
	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/roboterr"
)

// actSubProtocol is the sub-protocol byte for method calls, as opposed
// to registration/discovery traffic.
const actSubProtocol uint8 = 2

// multiErrorCode is the error code whose message is a semicolon-joined
// list of robot error strings rather than a single one.
const multiErrorCode uint16 = 21

// Act invokes one method on destination and returns the instrument's
// parameter count and remaining reply body on success. callType 0
// paired with reply code 1, or callType 3 paired with reply code 4,
// are the two success shapes the instrument uses; anything else is
// parsed as an error body.
func (m *Mux) Act(destination codec.ObjectAddress, interfaceID, callType uint8, callTypeID uint16, parameters []byte) (uint8, []byte, error) {
	body := make([]byte, 0, 6+len(parameters))
	body = append(body, interfaceID, callType, byte(callTypeID), byte(callTypeID>>8), 0, byte(len(parameters)))
	body = append(body, parameters...)

	code, reply, err := m.Request(destination, actSubProtocol, callType, true, body)
	if err != nil {
		return 0, nil, err
	}

	if len(reply) < 6 {
		return 0, nil, &roboterr.ConnectionError{Cause: &shortReplyError{}}
	}
	// reply[0] interface_id, reply[1] call_type, reply[2:4] call_type_id
	// echoed back, reply[4] unknown: none needed by the caller.
	count := reply[5]
	rest := reply[6:]

	if (callType == 0 && code == 1) || (callType == 3 && code == 4) {
		return count, rest, nil
	}

	return 0, nil, parseActFailure(destination, rest)
}

func parseActFailure(destination codec.ObjectAddress, body []byte) error {
	dec := codec.NewDecoder(body)
	errCode, err := dec.ErrorCode()
	if err != nil {
		return &roboterr.ConnectionError{Cause: err}
	}
	message, err := dec.String()
	if err != nil {
		return &roboterr.ConnectionError{Cause: err}
	}

	var robotErrors []roboterr.RobotError
	if errCode == multiErrorCode {
		robotErrors, err = roboterr.ParseRobotErrors(message)
	} else {
		var one roboterr.RobotError
		one, err = roboterr.ParseRobotError(message)
		robotErrors = []roboterr.RobotError{one}
	}
	if err != nil {
		return &roboterr.ConnectionError{Cause: err}
	}

	return &roboterr.CallError{Errors: robotErrors, Source: destination}
}

// shortReplyError reports an Act reply body too short to hold its
// fixed echoed header.
type shortReplyError struct{}

func (e *shortReplyError) Error() string {
	return "mux: act reply body shorter than its fixed echoed header"
}
