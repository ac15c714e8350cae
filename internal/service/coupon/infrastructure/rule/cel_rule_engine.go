// internal/service/coupon/infrastructure/rule/cel_rule_engine.go
package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"flashmart/internal/service/coupon/domain"
)

// CelRuleEngineAdapter 是 domain 侧 RuleEngine 接口的 CEL 实现。
// 典型的适配器模式：把第三方表达式引擎的 API 适配到我们自己的领域接口。
// 编译后的程序按规则文本缓存，同一条模板规则只编译一次。
type CelRuleEngineAdapter struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCelRuleEngineAdapter 创建规则引擎适配器，声明规则可见的事实变量。
func NewCelRuleEngineAdapter() (*CelRuleEngineAdapter, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.StringType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("issued_total", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}
	return &CelRuleEngineAdapter{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 实现 port.RuleEngine。空规则表示所有用户可领。
func (a *CelRuleEngineAdapter) Evaluate(ruleExpr string, fact domain.EligibilityFact) (bool, error) {
	if ruleExpr == "" {
		return true, nil
	}

	prg, err := a.program(ruleExpr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"user_id":      fact.UserID,
		"tier":         fact.Tier,
		"issued_total": fact.IssuedTotal,
	})
	if err != nil {
		return false, fmt.Errorf("rule evaluation failed: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q did not evaluate to bool", ruleExpr)
	}
	return result, nil
}

func (a *CelRuleEngineAdapter) program(ruleExpr string) (cel.Program, error) {
	a.mu.RLock()
	prg, ok := a.programs[ruleExpr]
	a.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := a.env.Compile(ruleExpr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid eligibility rule: %w", issues.Err())
	}
	prg, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule program: %w", err)
	}

	a.mu.Lock()
	a.programs[ruleExpr] = prg
	a.mu.Unlock()
	return prg, nil
}
