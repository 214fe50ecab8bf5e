package statemachine

import (
	"fmt"
	"strings"
)

// Status 工序状态
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusReleased   Status = "RELEASED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusFinished   Status = "FINISHED"
	StatusCancelled  Status = "CANCELLED"
)

// InitialStatus 新建工序的默认状态
const InitialStatus = StatusPlanned

var allStatuses = []Status{
	StatusPlanned,
	StatusReleased,
	StatusInProgress,
	StatusOnHold,
	StatusFinished,
	StatusCancelled,
}

var descriptions = map[Status]string{
	StatusPlanned:    "Operation is scheduled but not yet released for production",
	StatusReleased:   "Operation is ready to start and resources are allocated",
	StatusInProgress: "Operation is currently being executed",
	StatusOnHold:     "Operation is temporarily paused due to issues or constraints",
	StatusFinished:   "Operation has been completed successfully",
	StatusCancelled:  "Operation has been cancelled and will not be completed",
}

// AllStatuses 返回全部状态(按生命周期顺序)
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus 解析状态字符串
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status: %q", s)
	}
	return st, nil
}

// Valid 是否为已知状态
func (s Status) Valid() bool {
	_, ok := descriptions[s]
	return ok
}

// IsTerminal 终态不再有出边
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Description 状态说明
func (s Status) Description() string {
	if d, ok := descriptions[s]; ok {
		return d
	}
	return "Unknown state"
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal 判断状态字符串是否为终态
func IsTerminal(s string) bool {
	return Status(s).IsTerminal()
}

// Description 返回状态字符串的说明
func Description(s string) string {
	return Status(s).Description()
}
