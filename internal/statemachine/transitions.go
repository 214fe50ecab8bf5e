package statemachine

import (
	"github.com/looplab/fsm"
)

// 事件名称,同时作为 fsm 事件与审计动作
const (
	EventRelease = "release"
	EventCancel  = "cancel"
	EventStart   = "start"
	EventHold    = "hold"
	EventFinish  = "finish"
	EventResume  = "resume"
)

// Transition 状态转换定义
type Transition struct {
	Event                string
	From                 Status
	To                   Status
	Conditions           []Condition
	Effects              []Effect
	RequiresConfirmation bool
}

// transitionTable 静态转换表,查找时顺序扫描
var transitionTable = []Transition{
	{
		Event:      EventRelease,
		From:       StatusPlanned,
		To:         StatusReleased,
		Conditions: []Condition{HasRequiredMaterials, MachineAvailable},
		Effects:    []Effect{NotifyOperator, ReserveCapacity},
	},
	{
		Event:                EventCancel,
		From:                 StatusPlanned,
		To:                   StatusCancelled,
		Conditions:           []Condition{AuthorizedCancellation},
		Effects:              []Effect{ReleaseReservations, UpdateSchedule},
		RequiresConfirmation: true,
	},
	{
		Event:      EventStart,
		From:       StatusReleased,
		To:         StatusInProgress,
		Conditions: []Condition{OperatorAvailable, SetupComplete},
		Effects:    []Effect{StartTimeTracking, UpdateMachineStatus},
	},
	{
		Event:      EventHold,
		From:       StatusReleased,
		To:         StatusOnHold,
		Conditions: []Condition{HoldReasonProvided},
		Effects:    []Effect{PauseSchedule, NotifyPlanning},
	},
	{
		Event:                EventCancel,
		From:                 StatusReleased,
		To:                   StatusCancelled,
		Conditions:           []Condition{AuthorizedCancellation},
		Effects:              []Effect{ReleaseReservations, UpdateSchedule},
		RequiresConfirmation: true,
	},
	{
		Event:      EventFinish,
		From:       StatusInProgress,
		To:         StatusFinished,
		Conditions: []Condition{QualityApproved, QuantityComplete},
		Effects:    []Effect{CalculateActuals, UpdateInventory, ReleaseCapacity},
	},
	{
		Event:      EventHold,
		From:       StatusInProgress,
		To:         StatusOnHold,
		Conditions: []Condition{HoldReasonProvided},
		Effects:    []Effect{PauseTimeTracking, NotifyPlanning},
	},
	{
		Event:                EventCancel,
		From:                 StatusInProgress,
		To:                   StatusCancelled,
		Conditions:           []Condition{AuthorizedCancellation, WorkStoppageApproved},
		Effects:              []Effect{HandleWIP, CalculatePartialActuals},
		RequiresConfirmation: true,
	},
	{
		Event:      EventResume,
		From:       StatusOnHold,
		To:         StatusInProgress,
		Conditions: []Condition{HoldReasonResolved, ResourcesAvailable},
		Effects:    []Effect{ResumeTimeTracking, UpdateMachineStatus},
	},
	{
		Event:                EventCancel,
		From:                 StatusOnHold,
		To:                   StatusCancelled,
		Conditions:           []Condition{AuthorizedCancellation},
		Effects:              []Effect{HandleWIP, ReleaseReservations},
		RequiresConfirmation: true,
	},
}

// Transitions 返回转换表副本
func Transitions() []Transition {
	out := make([]Transition, len(transitionTable))
	copy(out, transitionTable)
	return out
}

// FindTransition 查找 from -> to 的转换定义
func FindTransition(from, to Status) (Transition, bool) {
	for _, t := range transitionTable {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// fsmEvents 将转换表折叠为 fsm 事件描述,同名事件合并来源状态
func fsmEvents() fsm.Events {
	index := make(map[string]int)
	var events fsm.Events
	for _, t := range transitionTable {
		if i, ok := index[t.Event]; ok {
			events[i].Src = append(events[i].Src, string(t.From))
			continue
		}
		index[t.Event] = len(events)
		events = append(events, fsm.EventDesc{
			Name: t.Event,
			Src:  []string{string(t.From)},
			Dst:  string(t.To),
		})
	}
	return events
}
