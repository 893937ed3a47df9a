// Package jsvm implements a browser tab on an embedded JavaScript runtime.
//
// A Page runs scripts against a minimal DOM and drives timers with a virtual
// clock, so pages that take minutes in a browser complete instantly.
package jsvm

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/errext"
	"github.com/browserbench/browserbench/log"
)

// DefaultPollInterval is the virtual time between two evaluations of a
// waited expression.
const DefaultPollInterval = 100 * time.Millisecond

// ErrClosed is returned by the methods of a closed Page.
var ErrClosed = errors.New("page closed")

//go:embed shim.js
var shimSource string

var _ api.Tab = &Page{}

// ConsoleMessage is a message logged by the page's console.
type ConsoleMessage struct {
	Level string
	Text  string
	Time  time.Duration
}

type timer struct {
	id  int64
	due time.Duration
	fn  goja.Callable
}

// Page is a tab whose JavaScript runs in-process.
type Page struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	logger *log.Logger

	addElement goja.Callable
	stringify  goja.Callable
	elements   map[string]*goja.Object

	now         time.Duration
	timers      []*timer
	nextTimerID int64

	url        string
	onNavigate NavigateFunc
	console    []ConsoleMessage
	closed     bool

	// PollInterval is the virtual time WaitForJavaScriptExpression lets pass
	// between evaluations.
	PollInterval time.Duration
}

// NavigateFunc is called after a page navigated to url, typically to load
// the page's scripts.
type NavigateFunc func(p *Page, url string) error

// New returns a blank page.
func New(logger *log.Logger) (*Page, error) {
	p := &Page{
		vm:           goja.New(),
		logger:       logger,
		elements:     make(map[string]*goja.Object),
		PollInterval: DefaultPollInterval,
	}

	native := map[string]any{
		"console":      p.nativeConsole,
		"setTimeout":   p.nativeSetTimeout,
		"clearTimeout": p.nativeClearTimeout,
	}
	if err := p.vm.Set("__native", native); err != nil {
		return nil, fmt.Errorf("installing natives: %w", err)
	}
	v, err := p.vm.RunScript("shim.js", shimSource)
	if err != nil {
		return nil, fmt.Errorf("installing shim: %w", err)
	}
	if err := p.vm.GlobalObject().Delete("__native"); err != nil {
		return nil, fmt.Errorf("installing shim: %w", err)
	}

	var ok bool
	if p.addElement, ok = goja.AssertFunction(v); !ok {
		return nil, errors.New("installing shim: addElement is not a function")
	}
	p.stringify, ok = goja.AssertFunction(p.vm.Get("JSON").ToObject(p.vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify is not a function")
	}

	return p, nil
}

// AddElement adds an element that document.getElementById can find.
func (p *Page) AddElement(id string, disabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	v, err := p.addElement(goja.Undefined(), p.vm.ToValue(id))
	if err != nil {
		return fmt.Errorf("adding element %q: %w", id, err)
	}
	el := v.ToObject(p.vm)
	if err := el.Set("disabled", disabled); err != nil {
		return fmt.Errorf("adding element %q: %w", id, err)
	}
	p.elements[id] = el

	return nil
}

// SetDisabled sets the disabled property of the element id.
func (p *Page) SetDisabled(id string, disabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.elements[id]
	if !ok {
		return fmt.Errorf("no element with id %q", id)
	}
	return el.Set("disabled", disabled) //nolint:wrapcheck
}

// RunScript runs src in the page's global scope.
func (p *Page) RunScript(name, src string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if _, err := p.vm.RunScript(name, src); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}

// Advance lets d of virtual time pass, firing the timers that fall due.
func (p *Page) Advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.advance(d)
}

// Now returns the virtual time elapsed since the page was created.
func (p *Page) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.now
}

// URL returns the URL of the last navigation.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.url
}

// ConsoleMessages returns the messages logged so far.
func (p *Page) ConsoleMessages() []ConsoleMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]ConsoleMessage(nil), p.console...)
}

// Navigate records url and calls the page's NavigateFunc, if any.
func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.url = url
	onNavigate := p.onNavigate
	p.mu.Unlock()

	p.logger.Debugf("jsvm:navigate", "url:%q", url)
	if onNavigate == nil {
		return nil
	}
	if err := onNavigate(p, url); err != nil {
		return fmt.Errorf("navigating to %q: %w", url, err)
	}
	return nil
}

// ExecuteJavaScript runs code as the body of a function.
func (p *Page) ExecuteJavaScript(ctx context.Context, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.evaluate(ctx, fmt.Sprintf("(function() {\n%s\n})()", code))
	return err
}

// EvaluateJavaScript returns the JSON encoding of expr's value.
func (p *Page) EvaluateJavaScript(ctx context.Context, expr string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.evaluate(ctx, expr)
}

// WaitForJavaScriptExpression evaluates expr until it is truthy, advancing
// the virtual clock by PollInterval between evaluations.
func (p *Page) WaitForJavaScriptExpression(ctx context.Context, expr string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cond := fmt.Sprintf("!!(%s)", expr)
	start := p.now
	for {
		v, err := p.evaluate(ctx, cond)
		if err != nil {
			return err
		}
		if string(v) == "true" {
			return nil
		}

		remaining := timeout - (p.now - start)
		if remaining <= 0 {
			return &errext.TimeoutError{Op: "WaitForJavaScriptExpression", Expression: expr, Timeout: timeout}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for %q: %w", expr, err)
		}
		step := p.PollInterval
		if step > remaining {
			step = remaining
		}
		p.advance(step)
	}
}

// Close closes the page. Pending timers never fire.
func (p *Page) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.timers = nil

	return nil
}

func (p *Page) evaluate(ctx context.Context, expr string) ([]byte, error) {
	if p.closed {
		return nil, ErrClosed
	}

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		p.vm.Interrupt(ctx.Err())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			// The interrupt must land before it is cleared, or it would
			// abort the next evaluation.
			<-interrupted
			p.vm.ClearInterrupt()
		}
	}()

	v, err := p.vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	s, err := p.stringify(goja.Undefined(), v)
	if err != nil {
		return nil, fmt.Errorf("encoding expression value: %w", err)
	}
	if goja.IsUndefined(s) {
		return []byte("null"), nil
	}

	return []byte(s.String()), nil
}

func (p *Page) advance(d time.Duration) {
	target := p.now + d
	for len(p.timers) > 0 && p.timers[0].due <= target {
		t := p.timers[0]
		p.timers = p.timers[1:]
		p.now = t.due
		if _, err := t.fn(goja.Undefined()); err != nil {
			p.logger.Warnf("jsvm:timer", "timer %d: %v", t.id, err)
		}
	}
	p.now = target
}

func (p *Page) nativeConsole(call goja.FunctionCall) goja.Value {
	level := call.Argument(0).String()
	var parts []string
	if len(call.Arguments) > 1 {
		for _, arg := range call.Arguments[1:] {
			parts = append(parts, arg.String())
		}
	}
	msg := ConsoleMessage{Level: level, Text: strings.Join(parts, " "), Time: p.now}
	p.console = append(p.console, msg)
	p.logger.Debugf("jsvm:console", "%s: %s", level, msg.Text)

	return goja.Undefined()
}

func (p *Page) nativeSetTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(p.vm.NewTypeError("setTimeout callback is not a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	p.nextTimerID++
	t := &timer{id: p.nextTimerID, due: p.now + delay, fn: fn}
	// Timers due at the same time fire in the order they were set.
	i := sort.Search(len(p.timers), func(i int) bool { return p.timers[i].due > t.due })
	p.timers = append(p.timers, nil)
	copy(p.timers[i+1:], p.timers[i:])
	p.timers[i] = t

	return p.vm.ToValue(t.id)
}

func (p *Page) nativeClearTimeout(id int64) {
	for i, t := range p.timers {
		if t.id == id {
			p.timers = append(p.timers[:i], p.timers[i+1:]...)
			return
		}
	}
}
