// Package rules provides the CEL-backed rule store and evaluator.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/openrisk/kestrel/internal/domain"
)

// Field names available to rule predicates.
const (
	FieldAmount      = "amount"
	FieldChannel     = "channel"
	FieldPaymentMode = "payment_mode"
	FieldPayerID     = "payer_id"
	FieldPayeeID     = "payee_id"
	FieldDevice      = "device"
	FieldBrowser     = "browser"

	// FieldHour is the transaction timestamp's hour of day, 0-23.
	FieldHour = "hour"

	// FieldVelocityCount is the payer's rolling transaction count,
	// injected context computed outside the rule.
	FieldVelocityCount = "velocity_count"
)

type fieldKind int

const (
	kindNumeric fieldKind = iota
	kindString
)

var predicateFields = map[string]fieldKind{
	FieldAmount:        kindNumeric,
	FieldHour:          kindNumeric,
	FieldVelocityCount: kindNumeric,
	FieldChannel:       kindString,
	FieldPaymentMode:   kindString,
	FieldPayerID:       kindString,
	FieldPayeeID:       kindString,
	FieldDevice:        kindString,
	FieldBrowser:       kindString,
}

// newEnv creates the CEL environment with one variable per predicate
// field. Numeric fields are doubles so JSON-decoded literals compare
// without conversion.
func newEnv() (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(predicateFields))
	for name, kind := range predicateFields {
		if kind == kindNumeric {
			opts = append(opts, cel.Variable(name, cel.DoubleType))
		} else {
			opts = append(opts, cel.Variable(name, cel.StringType))
		}
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// ValidatePredicate checks a predicate against the field registry:
// the field must exist, the operator must suit the field's kind, and the
// literal must match the field's type. This runs at rule creation, so a
// malformed condition is rejected before it can ever be evaluated.
func ValidatePredicate(p domain.Predicate) error {
	kind, ok := predicateFields[p.Field]
	if !ok {
		return fmt.Errorf("%w: unknown predicate field %q", domain.ErrValidation, p.Field)
	}

	switch p.Operator {
	case domain.OpEQ, domain.OpNE:
	case domain.OpGT, domain.OpGE, domain.OpLT, domain.OpLE:
		if kind == kindString {
			return fmt.Errorf("%w: operator %q not allowed on string field %q",
				domain.ErrValidation, p.Operator, p.Field)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", domain.ErrValidation, p.Operator)
	}

	switch kind {
	case kindNumeric:
		if _, ok := numericLiteral(p.Value); !ok {
			return fmt.Errorf("%w: field %q requires a numeric value", domain.ErrValidation, p.Field)
		}
	case kindString:
		if _, ok := p.Value.(string); !ok {
			return fmt.Errorf("%w: field %q requires a string value", domain.ErrValidation, p.Field)
		}
	}

	return nil
}

// numericLiteral normalizes the JSON-decoded literal types to float64.
func numericLiteral(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// renderExpression converts a validated predicate into CEL source.
func renderExpression(p domain.Predicate) string {
	if predicateFields[p.Field] == kindString {
		return fmt.Sprintf("%s %s %s", p.Field, p.Operator, strconv.Quote(p.Value.(string)))
	}

	n, _ := numericLiteral(p.Value)
	lit := strconv.FormatFloat(n, 'f', -1, 64)
	if !strings.ContainsAny(lit, ".eE") {
		lit += ".0" // force a CEL double literal
	}
	return fmt.Sprintf("%s %s %s", p.Field, p.Operator, lit)
}

// compilePredicate validates and compiles a predicate into an executable
// CEL program.
func compilePredicate(env *cel.Env, p domain.Predicate) (cel.Program, error) {
	if err := ValidatePredicate(p); err != nil {
		return nil, err
	}

	expr := renderExpression(p)
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile condition %q: %v",
			domain.ErrValidation, expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: condition %q must evaluate to a boolean",
			domain.ErrValidation, expr)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for condition %q: %w", expr, err)
	}
	return program, nil
}
