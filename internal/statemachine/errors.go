package statemachine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition 状态转换不允许
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError 状态转换失败详情
type TransitionError struct {
	From             Status
	To               Status
	Reason           string
	FailedConditions []Condition
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("Invalid transition from %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.FailedConditions) > 0 {
		names := make([]string, len(e.FailedConditions))
		for i, c := range e.FailedConditions {
			names[i] = string(c)
		}
		msg += " (failed conditions: " + strings.Join(names, ", ") + ")"
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
