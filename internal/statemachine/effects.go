package statemachine

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Effect 转换副作用
type Effect string

const (
	NotifyOperator          Effect = "notify_operator"
	ReserveCapacity         Effect = "reserve_capacity"
	ReleaseReservations     Effect = "release_reservations"
	UpdateSchedule          Effect = "update_schedule"
	StartTimeTracking       Effect = "start_time_tracking"
	UpdateMachineStatus     Effect = "update_machine_status"
	PauseSchedule           Effect = "pause_schedule"
	NotifyPlanning          Effect = "notify_planning"
	CalculateActuals        Effect = "calculate_actuals"
	UpdateInventory         Effect = "update_inventory"
	ReleaseCapacity         Effect = "release_capacity"
	PauseTimeTracking       Effect = "pause_time_tracking"
	HandleWIP               Effect = "handle_wip"
	CalculatePartialActuals Effect = "calculate_partial_actuals"
	ResumeTimeTracking      Effect = "resume_time_tracking"
)

// Message 副作用日志消息,未知副作用返回空串
func (e Effect) Message() string {
	switch e {
	case NotifyOperator:
		return "Operator notified"
	case ReserveCapacity:
		return "Capacity reserved"
	case ReleaseReservations:
		return "Reservations released"
	case UpdateSchedule:
		return "Schedule updated"
	case StartTimeTracking:
		return "Time tracking started"
	case UpdateMachineStatus:
		return "Machine status updated"
	case PauseSchedule:
		return "Schedule paused"
	case NotifyPlanning:
		return "Planning notified"
	case CalculateActuals:
		return "Actual times calculated"
	case UpdateInventory:
		return "Inventory updated"
	case ReleaseCapacity:
		return "Capacity released"
	case PauseTimeTracking:
		return "Time tracking paused"
	case HandleWIP:
		return "Work-in-progress handled"
	case CalculatePartialActuals:
		return "Partial actuals calculated"
	case ResumeTimeTracking:
		return "Time tracking resumed"
	default:
		return ""
	}
}

// EffectEvent 传递给监听器的副作用事件
type EffectEvent struct {
	Effect  Effect
	From    Status
	To      Status
	Actor   string
	Context Context
}

// EffectListener 副作用监听器(如 WebSocket 推送)
type EffectListener interface {
	OnEffect(ctx context.Context, ev EffectEvent) error
}

// EffectListenerFunc 函数适配器
type EffectListenerFunc func(ctx context.Context, ev EffectEvent) error

// OnEffect 实现 EffectListener
func (f EffectListenerFunc) OnEffect(ctx context.Context, ev EffectEvent) error {
	return f(ctx, ev)
}

// runEffects 依次执行副作用,单个失败只记录日志
func (m *Machine) runEffects(ctx context.Context, t Transition, actor string, tctx Context) []Effect {
	executed := make([]Effect, 0, len(t.Effects))
	for _, effect := range t.Effects {
		if m.runEffect(ctx, effect, t, actor, tctx) {
			executed = append(executed, effect)
		}
	}
	return executed
}

func (m *Machine) runEffect(ctx context.Context, effect Effect, t Transition, actor string, tctx Context) (ok bool) {
	log := m.logger.WithFields(logrus.Fields{
		"effect": string(effect),
		"from":   string(t.From),
		"to":     string(t.To),
	})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Effect execution failed: %v", r)
			ok = false
		}
	}()

	msg := effect.Message()
	if msg == "" {
		log.Warnf("Unknown effect: %s", effect)
		return false
	}
	log.Info(msg)

	ev := EffectEvent{Effect: effect, From: t.From, To: t.To, Actor: actor, Context: tctx}
	for _, l := range m.listeners {
		if err := l.OnEffect(ctx, ev); err != nil {
			log.WithError(err).Error("Effect execution failed")
			return false
		}
	}
	return true
}
