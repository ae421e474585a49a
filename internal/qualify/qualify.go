// Package qualify compiles and evaluates the optional CEL predicate attached to
// a tier's qualification. The predicate sees two integer variables:
// order_count and order_value_cents.
package qualify

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/matthewbaird/followup/internal/types"
)

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

func celEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("order_count", cel.IntType),
			cel.Variable("order_value_cents", cel.IntType),
		)
	})
	return env, envErr
}

// Expr is a compiled qualification predicate.
type Expr struct {
	src string
	prg cel.Program
}

// Compile parses and type-checks src. The expression must produce a bool.
func Compile(src string) (*Expr, error) {
	e, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("building cel env: %w", err)
	}
	ast, iss := e.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("planning expression: %w", err)
	}
	return &Expr{src: src, prg: prg}, nil
}

// String returns the source text.
func (x *Expr) String() string { return x.src }

// Match evaluates the predicate against m.
func (x *Expr) Match(m types.OrderMetrics) (bool, error) {
	out, _, err := x.prg.Eval(map[string]any{
		"order_count":       int64(m.AnnualOrders),
		"order_value_cents": m.AnnualValue.AmountCents,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", x.src, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluating %q: non-bool result %v", x.src, out.Value())
	}
	return b, nil
}

// Cache memoises compiled expressions by source text.
type Cache struct {
	mu    sync.Mutex
	exprs map[string]*Expr
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{exprs: make(map[string]*Expr)}
}

// Get compiles src on first use and returns the cached program afterwards.
func (c *Cache) Get(src string) (*Expr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if x, ok := c.exprs[src]; ok {
		return x, nil
	}
	x, err := Compile(src)
	if err != nil {
		return nil, err
	}
	c.exprs[src] = x
	return x, nil
}
