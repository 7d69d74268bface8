package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/unirank/unirank/models"
)

// defaultActionTimeout applies when the request carries no ActionTimeout.
const defaultActionTimeout = 10 * time.Second

// stepFunc performs one step under ctx.
type stepFunc func(ctx context.Context, step models.Step) error

// executeSteps runs the ordered interaction steps on the page. It stops at
// the first failing required step and reports which one failed and how
// many completed.
func executeSteps(ctx context.Context, page *rod.Page, steps []models.Step, timeout time.Duration) error {
	return runSteps(ctx, steps, timeout, func(ctx context.Context, step models.Step) error {
		return executeStep(ctx, page, step)
	})
}

// runSteps gives each step its own timeout. Optional failures are logged
// and skipped; a required failure is INTERACTION_FAILED.
func runSteps(ctx context.Context, steps []models.Step, timeout time.Duration, do stepFunc) error {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	for i, step := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err := do(stepCtx, step)
		cancel()
		if err != nil {
			if step.Optional {
				slog.Info("optional step skipped", "step", i, "type", step.Type, "error", err)
				continue
			}
			return models.NewScrapeError(
				models.ErrCodeInteraction,
				fmt.Sprintf("step %d (%s) failed after %d completed: %v", i, step.Type, i, err),
				err,
			)
		}
	}
	return nil
}

// executeStep dispatches a single step; ctx carries its timeout.
func executeStep(ctx context.Context, page *rod.Page, step models.Step) error {
	p := page.Context(ctx)

	switch step.Type {
	case "select":
		return execSelect(p, step)
	case "click":
		return execClick(p, step)
	case "input":
		return execInput(p, step)
	case "wait":
		return execWait(p, step)
	case "narrowed":
		return execNarrowed(ctx, p, step)
	case "stable":
		return p.WaitDOMStable(300*time.Millisecond, 0.1)
	case "execute_js":
		return execJS(p, step)
	default:
		return fmt.Errorf("unknown step type: %s", step.Type)
	}
}

// execSelect picks the option whose value equals step.Value.
func execSelect(p *rod.Page, step models.Step) error {
	if step.Selector == "" || step.Value == "" {
		return fmt.Errorf("select step requires a selector and a value")
	}
	el, err := p.Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", step.Selector, err)
	}
	option := "option[value=" + strconv.Quote(step.Value) + "]"
	return el.Select([]string{option}, true, rod.SelectorTypeCSSSector)
}

// execClick finds the element matching the selector and clicks it.
func execClick(p *rod.Page, step models.Step) error {
	if step.Selector == "" {
		return fmt.Errorf("click step requires a selector")
	}
	el, err := p.Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", step.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execInput types step.Value into the element and optionally submits with Enter.
func execInput(p *rod.Page, step models.Step) error {
	if step.Selector == "" {
		return fmt.Errorf("input step requires a selector")
	}
	el, err := p.Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", step.Selector, err)
	}
	if err := el.Input(step.Value); err != nil {
		return fmt.Errorf("type into %q: %w", step.Selector, err)
	}
	if step.Submit {
		return el.Type(input.Enter)
	}
	return nil
}

// execWait waits for a CSS selector to appear.
func execWait(p *rod.Page, step models.Step) error {
	if step.Selector == "" {
		return fmt.Errorf("wait step requires a selector")
	}
	return p.WaitElementsMoreThan(step.Selector, 0)
}

// rowTextsJS returns the text of every row under a selector that has at
// least two cells, leaving out placeholder rows like "No matching records".
const rowTextsJS = `(sel) => Array.from(document.querySelectorAll(sel))
	.filter(r => r.querySelectorAll(':scope > td').length >= 2)
	.map(r => r.textContent)`

// narrowedPollInterval is how often a "narrowed" step re-reads the rows.
const narrowedPollInterval = 250 * time.Millisecond

// execNarrowed waits until a client-side filter has taken effect: every
// row under the selector mentions step.Value. Rows that merely exist prove
// nothing, since the unfiltered page has them too.
func execNarrowed(ctx context.Context, p *rod.Page, step models.Step) error {
	if step.Selector == "" {
		return fmt.Errorf("narrowed step requires a selector")
	}
	ticker := time.NewTicker(narrowedPollInterval)
	defer ticker.Stop()
	for {
		res, err := p.Eval(rowTextsJS, step.Selector)
		if err != nil {
			return fmt.Errorf("read rows %q: %w", step.Selector, err)
		}
		var texts []string
		for _, v := range res.Value.Arr() {
			texts = append(texts, v.Str())
		}
		if step.Narrowed(texts) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rows %q never narrowed to %q: %w", step.Selector, step.Value, ctx.Err())
		case <-ticker.C:
		}
	}
}

// execJS evaluates arbitrary JavaScript in the page context.
func execJS(p *rod.Page, step models.Step) error {
	if step.Code == "" {
		return fmt.Errorf("execute_js step requires code")
	}
	_, err := p.Eval(step.Code)
	return err
}
