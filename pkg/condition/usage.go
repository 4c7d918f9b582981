package condition

import (
	"context"
	"fmt"

	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/threshold"
)

type absolute struct {
	pool   string
	spec   threshold.Absolute
	source health.Source
}

func (a *absolute) Pool() string         { return a.pool }
func (a *absolute) Spec() threshold.Spec { return a.spec }

func (a *absolute) Evaluate(ctx context.Context) (Result, error) {
	u, err := sample(ctx, a.source, a.pool)
	if err != nil {
		return Result{Pool: a.pool}, err
	}

	res := Result{Pool: a.pool, Verdict: Satisfied, Usage: u}
	if a.spec.Comparison.Apply(float64(u.Used), a.spec.TargetBytes) {
		res.Verdict = Violated
	}

	unit := a.spec.Unit
	res.Message = fmt.Sprintf("Memory pool '%s' at %s%s usage, configured threshold is %s %s%s",
		a.pool, threshold.FormatDecimal(unit.FromBytes(float64(u.Used))), unit,
		a.spec.Comparison.Human(), threshold.FormatDecimal(unit.FromBytes(a.spec.TargetBytes)), unit)
	return res, nil
}

func (a *absolute) String() string {
	return fmt.Sprintf("Memory pool '%s' used %s %s%s", a.pool, a.spec.Comparison.Human(),
		threshold.FormatDecimal(a.spec.Unit.FromBytes(a.spec.TargetBytes)), a.spec.Unit)
}

type percentage struct {
	pool   string
	spec   threshold.Percentage
	source health.Source
}

func (p *percentage) Pool() string         { return p.pool }
func (p *percentage) Spec() threshold.Spec { return p.spec }

func (p *percentage) Evaluate(ctx context.Context) (Result, error) {
	u, err := sample(ctx, p.source, p.pool)
	if err != nil {
		return Result{Pool: p.pool}, err
	}
	r, err := ratio(u)
	if err != nil {
		return Result{Pool: p.pool, Usage: u}, err
	}

	res := Result{Pool: p.pool, Verdict: Satisfied, Usage: u}
	if r > p.spec.Percent {
		res.Verdict = Violated
	}
	res.Message = fmt.Sprintf("Memory pool '%s' at %s%% usage, configured threshold is %s%%",
		p.pool, threshold.FormatDecimal(r), threshold.FormatDecimal(p.spec.Percent))
	return res, nil
}

func (p *percentage) String() string {
	return fmt.Sprintf("Memory pool '%s' used above %s%%", p.pool, threshold.FormatDecimal(p.spec.Percent))
}
