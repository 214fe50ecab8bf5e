package rules

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Rule 命名的校验规则,返回错误消息列表
type Rule struct {
	Name  string
	Check func(s Snapshot, log *logrus.Entry) []string
}

// DefaultRules 默认规则集,按执行顺序排列
func DefaultRules() []Rule {
	return []Rule{
		{Name: "quantity_relationships", Check: checkQuantityRelationships},
		{Name: "time_relationships", Check: checkTimeRelationships},
		{Name: "status_constraints", Check: checkStatusConstraints},
		{Name: "workplace_constraints", Check: checkWorkplaceConstraints},
		{Name: "operation_sequence", Check: checkOperationSequence},
	}
}

// Engine 制造业务规则引擎
type Engine struct {
	rules  []Rule
	logger *logrus.Entry
}

// NewEngine 使用默认规则集创建引擎
func NewEngine(logger *logrus.Logger) *Engine {
	return NewEngineWithRules(logger, DefaultRules())
}

// NewEngineWithRules 使用指定规则集创建引擎
func NewEngineWithRules(logger *logrus.Logger, rules []Rule) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		rules:  rules,
		logger: logger.WithField("component", "rule_engine"),
	}
}

// RuleNames 返回规则名称
func (e *Engine) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

// Validate 依次执行全部规则并汇总错误,空列表表示通过
func (e *Engine) Validate(s Snapshot) []string {
	errs := []string{}
	for _, r := range e.rules {
		errs = append(errs, e.run(r, s)...)
	}
	return errs
}

// run 执行单条规则,规则 panic 时记录日志并返回通用错误
func (e *Engine) run(r Rule, s Snapshot) (errs []string) {
	log := e.logger.WithField("rule", r.Name)
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Error in validation rule %s: %v", r.Name, rec)
			errs = []string{fmt.Sprintf("Validation error in rule %s", r.Name)}
		}
	}()
	return r.Check(s, log)
}
