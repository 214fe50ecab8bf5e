package api

import (
	"net/http"

	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/gin-gonic/gin"
)

// TransitionInfo 转换定义
type TransitionInfo struct {
	Event                string   `json:"event" example:"start"`
	From                 string   `json:"from" example:"RELEASED"`
	To                   string   `json:"to" example:"IN_PROGRESS"`
	Conditions           []string `json:"conditions"`
	Effects              []string `json:"effects"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
}

// StateInfo 状态说明与出边
type StateInfo struct {
	Status      string           `json:"status" example:"RELEASED"`
	Description string           `json:"description"`
	Terminal    bool             `json:"terminal"`
	Transitions []TransitionInfo `json:"transitions"`
}

// StateController 状态机查询控制器
type StateController struct{}

// NewStateController 创建状态机查询控制器
func NewStateController() *StateController {
	return &StateController{}
}

func transitionInfo(t statemachine.Transition) TransitionInfo {
	info := TransitionInfo{
		Event:                t.Event,
		From:                 t.From.String(),
		To:                   t.To.String(),
		Conditions:           make([]string, 0, len(t.Conditions)),
		Effects:              make([]string, 0, len(t.Effects)),
		RequiresConfirmation: t.RequiresConfirmation,
	}
	for _, c := range t.Conditions {
		info.Conditions = append(info.Conditions, string(c))
	}
	for _, e := range t.Effects {
		info.Effects = append(info.Effects, string(e))
	}
	return info
}

func stateInfo(status statemachine.Status) StateInfo {
	info := StateInfo{
		Status:      status.String(),
		Description: status.Description(),
		Terminal:    status.IsTerminal(),
		Transitions: []TransitionInfo{},
	}
	for _, t := range statemachine.Transitions() {
		if t.From == status {
			info.Transitions = append(info.Transitions, transitionInfo(t))
		}
	}
	return info
}

// List 列出全部状态
// @Summary      状态列表
// @Description  按生命周期顺序返回全部状态及其允许的转换
// @Tags         状态机
// @Produce      json
// @Success      200  {object}  Response{data=[]StateInfo}
// @Router       /states [get]
// @Security     BearerAuth
func (c *StateController) List(ctx *gin.Context) {
	statuses := statemachine.AllStatuses()
	out := make([]StateInfo, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, stateInfo(st))
	}
	Success(ctx, out)
}

// Get 单个状态
// @Summary      状态详情
// @Tags         状态机
// @Produce      json
// @Param        status path string true "状态" Enums(PLANNED, RELEASED, IN_PROGRESS, ON_HOLD, FINISHED, CANCELLED)
// @Success      200  {object}  Response{data=StateInfo}
// @Failure      404  {object}  ErrorResponse
// @Router       /states/{status} [get]
// @Security     BearerAuth
func (c *StateController) Get(ctx *gin.Context) {
	status, err := statemachine.ParseStatus(ctx.Param("status"))
	if err != nil {
		Error(ctx, http.StatusNotFound, "unknown status", err.Error())
		return
	}
	Success(ctx, stateInfo(status))
}

// Transitions 转换表
// @Summary      转换表
// @Description  返回全部转换及其前置条件与副作用
// @Tags         状态机
// @Produce      json
// @Success      200  {object}  Response{data=[]TransitionInfo}
// @Router       /states/transitions [get]
// @Security     BearerAuth
func (c *StateController) Transitions(ctx *gin.Context) {
	transitions := statemachine.Transitions()
	out := make([]TransitionInfo, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, transitionInfo(t))
	}
	Success(ctx, out)
}
