package statemachine

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Context 转换上下文,取值可能来自 JSON 解码
type Context map[string]interface{}

// Condition 转换前置条件
type Condition string

const (
	HasRequiredMaterials   Condition = "has_required_materials"
	MachineAvailable       Condition = "machine_available"
	AuthorizedCancellation Condition = "authorized_cancellation"
	OperatorAvailable      Condition = "operator_available"
	SetupComplete          Condition = "setup_complete"
	HoldReasonProvided     Condition = "hold_reason_provided"
	QualityApproved        Condition = "quality_approved"
	QuantityComplete       Condition = "quantity_complete"
	HoldReasonResolved     Condition = "hold_reason_resolved"
	ResourcesAvailable     Condition = "resources_available"
	WorkStoppageApproved   Condition = "work_stoppage_approved"
)

// 可以授权取消的角色
var cancellationRoles = map[string]bool{
	"supervisor": true,
	"manager":    true,
}

// Check 对上下文求值,未知条件视为不满足
func (c Condition) Check(ctx Context) bool {
	switch c {
	case HasRequiredMaterials:
		return ctx.Bool("materials_available", true)
	case MachineAvailable:
		return ctx.String("machine_status") != "DOWN"
	case AuthorizedCancellation:
		return cancellationRoles[strings.ToLower(ctx.String("user_role"))]
	case OperatorAvailable:
		return ctx.Bool("operator_assigned", true)
	case SetupComplete:
		return ctx.String("setup_status") == "COMPLETE"
	case HoldReasonProvided:
		return strings.TrimSpace(ctx.String("hold_reason")) != ""
	case QualityApproved:
		return ctx.String("quality_status") == "APPROVED"
	case QuantityComplete:
		return ctx.Float("qty_processed", 0) >= ctx.Float("qty_desired", 1)
	case HoldReasonResolved:
		return ctx.Bool("hold_resolved", false)
	case ResourcesAvailable:
		return ctx.Bool("resources_ready", true)
	case WorkStoppageApproved:
		return ctx.Bool("stoppage_approved", false)
	default:
		return false
	}
}

// ConditionResult 单个条件的求值结果
type ConditionResult struct {
	Condition Condition `json:"condition"`
	Passed    bool      `json:"passed"`
}

// Merge 返回合并后的新上下文,other 覆盖同名键
func (c Context) Merge(other Context) Context {
	out := make(Context, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String 读取字符串值,缺失返回空串
func (c Context) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// Bool 读取布尔值,缺失或无法识别时返回默认值
func (c Context) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Float 读取数值,缺失或无法识别时返回默认值
func (c Context) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}
