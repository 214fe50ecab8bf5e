package statemachine

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// TransitionResult 转换执行结果
type TransitionResult struct {
	FromState            Status    `json:"from_state"`
	ToState              Status    `json:"to_state"`
	Event                string    `json:"event,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
	UserID               string    `json:"user_id"`
	EffectsExecuted      []Effect  `json:"effects_executed"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
}

// Machine 工序状态机
// 转换表是静态的,Machine 只持有日志与副作用监听器,可并发使用
type Machine struct {
	logger    *logrus.Entry
	listeners []EffectListener
	events    fsm.Events
	now       func() time.Time
}

// NewMachine 创建状态机,logger 为 nil 时使用标准 logger
func NewMachine(logger *logrus.Logger, listeners ...EffectListener) *Machine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Machine{
		logger:    logger.WithField("component", "state_machine"),
		listeners: listeners,
		events:    fsmEvents(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// IsAllowed 只检查转换图中是否存在边,同状态视为允许
func (m *Machine) IsAllowed(from, to string) bool {
	f, t := Status(from), Status(to)
	if !f.Valid() || !t.Valid() {
		return false
	}
	if f == t {
		return true
	}
	_, ok := FindTransition(f, t)
	return ok
}

// CanTransition 检查转换是否存在且所有前置条件满足
func (m *Machine) CanTransition(from, to string, ctx Context) bool {
	f, t := Status(from), Status(to)
	if !f.Valid() || !t.Valid() {
		return false
	}
	if f == t {
		return true
	}
	tr, ok := FindTransition(f, t)
	if !ok {
		return false
	}
	return len(failedConditions(tr, ctx)) == 0
}

// Evaluate 返回每个前置条件的求值结果
func (m *Machine) Evaluate(from, to string, ctx Context) ([]ConditionResult, error) {
	f, t := Status(from), Status(to)
	if !f.Valid() || !t.Valid() {
		return nil, &TransitionError{From: f, To: t, Reason: "unknown status"}
	}
	if f == t {
		return []ConditionResult{}, nil
	}
	tr, ok := FindTransition(f, t)
	if !ok {
		return nil, &TransitionError{From: f, To: t, Reason: "transition not defined"}
	}
	results := make([]ConditionResult, 0, len(tr.Conditions))
	for _, c := range tr.Conditions {
		results = append(results, ConditionResult{Condition: c, Passed: c.Check(ctx)})
	}
	return results, nil
}

// ValidTransitions 返回 from 可到达的目标状态集合
func (m *Machine) ValidTransitions(from string) mapset.Set[Status] {
	targets := mapset.NewSet[Status]()
	for _, t := range transitionTable {
		if t.From == Status(from) {
			targets.Add(t.To)
		}
	}
	return targets
}

// Transition 执行状态转换
// 前置条件在 fsm 的 before_event 回调中检查,失败时取消事件;进入新状态后执行副作用
func (m *Machine) Transition(ctx context.Context, from, to string, tctx Context, actor string) (*TransitionResult, error) {
	f, t := Status(from), Status(to)
	if !f.Valid() || !t.Valid() {
		return nil, &TransitionError{From: f, To: t, Reason: "unknown status"}
	}
	if tctx == nil {
		tctx = Context{}
	}

	if f == t {
		return &TransitionResult{
			FromState:       f,
			ToState:         t,
			Timestamp:       m.now(),
			UserID:          actor,
			EffectsExecuted: []Effect{},
		}, nil
	}

	tr, ok := FindTransition(f, t)
	if !ok {
		return nil, &TransitionError{From: f, To: t, Reason: "transition not defined"}
	}

	var executed []Effect
	machine := fsm.NewFSM(
		string(f),
		m.events,
		fsm.Callbacks{
			"before_" + tr.Event: func(_ context.Context, e *fsm.Event) {
				if failed := failedConditions(tr, tctx); len(failed) > 0 {
					e.Cancel(&TransitionError{From: f, To: t, Reason: "conditions not met", FailedConditions: failed})
				}
			},
			"enter_state": func(c context.Context, e *fsm.Event) {
				executed = m.runEffects(c, tr, actor, tctx)
			},
		},
	)

	if err := machine.Event(ctx, tr.Event); err != nil {
		var canceled fsm.CanceledError
		if errors.As(err, &canceled) && canceled.Err != nil {
			m.logger.WithFields(logrus.Fields{"from": from, "to": to}).Warn(canceled.Err.Error())
			return nil, canceled.Err
		}
		return nil, fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}

	m.logger.WithFields(logrus.Fields{
		"from":  from,
		"to":    to,
		"actor": actor,
	}).Info("State transition completed")

	if executed == nil {
		executed = []Effect{}
	}
	return &TransitionResult{
		FromState:            f,
		ToState:              t,
		Event:                tr.Event,
		Timestamp:            m.now(),
		UserID:               actor,
		EffectsExecuted:      executed,
		RequiresConfirmation: tr.RequiresConfirmation,
	}, nil
}

func failedConditions(t Transition, ctx Context) []Condition {
	var failed []Condition
	for _, c := range t.Conditions {
		if !c.Check(ctx) {
			failed = append(failed, c)
		}
	}
	return failed
}
