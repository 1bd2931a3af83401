// Package segment turns a user-authored condition list into a boolean
// predicate over a customer record, in two equivalent forms: a parameterized
// SQL fragment for query pushdown and an in-memory matcher.
package segment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"minicrm/internal/domain"
	"minicrm/internal/store"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumeric
	kindDate
)

// fields is the allow-list of filterable customer attributes. Column names
// come from this map only; user input never reaches the SQL text.
var fields = map[string]struct {
	column string
	kind   fieldKind
}{
	"name":            {"name", kindString},
	"email":           {"email", kindString},
	"phone":           {"phone", kindString},
	"total_spending":  {"total_spending", kindNumeric},
	"last_visit_date": {"last_visit_date", kindDate},
}

// operators maps allowed comparison symbols to their SQL spelling.
var operators = map[string]string{
	"=":  "=",
	"!=": "<>",
	">":  ">",
	"<":  "<",
	">=": ">=",
	"<=": "<=",
}

// Predicate is a storage-level rendering of a condition list. SQL reads like
// "((name = $1) OR (total_spending >= $2))" and is meant to follow a WHERE.
type Predicate struct {
	SQL  string
	Args []any
}

// typedValue coerces a wire value (string | number via encoding/json) into
// the comparable Go type for the field kind.
func typedValue(kind fieldKind, v any) (any, error) {
	switch kind {
	case kindNumeric:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: non-numeric value %q", domain.ErrInvalidCondition, n)
			}
			return f, nil
		}
	case kindDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: date value must be a string", domain.ErrInvalidCondition)
		}
		for _, layout := range []string{"2006-01-02", time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%w: unparseable date %q", domain.ErrInvalidCondition, s)
	case kindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: value must be a string", domain.ErrInvalidCondition)
	}
	return nil, domain.ErrInvalidCondition
}

func normalizeLogic(l domain.Logic) (domain.Logic, bool) {
	switch domain.Logic(strings.ToUpper(string(l))) {
	case domain.LogicAnd:
		return domain.LogicAnd, true
	case domain.LogicOr:
		return domain.LogicOr, true
	}
	return "", false
}

// Validate checks a condition list against the allow-lists without building
// anything. Empty list is ErrValidation; everything else is ErrInvalidCondition.
func Validate(conds []domain.Condition) error {
	if len(conds) == 0 {
		return fmt.Errorf("%w: empty condition list", domain.ErrValidation)
	}
	for i, c := range conds {
		if c.Field == "" || c.Operator == "" || c.Value == nil {
			return fmt.Errorf("%w: condition %d is incomplete", domain.ErrInvalidCondition, i)
		}
		f, ok := fields[c.Field]
		if !ok {
			return fmt.Errorf("%w: unknown field %q", domain.ErrInvalidCondition, c.Field)
		}
		if _, ok := operators[c.Operator]; !ok {
			return fmt.Errorf("%w: operator %q not allowed", domain.ErrInvalidCondition, c.Operator)
		}
		if _, err := typedValue(f.kind, c.Value); err != nil {
			return err
		}
		// A connective is required between two conditions. Logic on the last
		// condition is accepted and ignored.
		if i < len(conds)-1 {
			if c.Logic == "" {
				return fmt.Errorf("%w: condition %d has no connective", domain.ErrInvalidCondition, i)
			}
			if _, ok := normalizeLogic(c.Logic); !ok {
				return fmt.Errorf("%w: connective %q not allowed", domain.ErrInvalidCondition, c.Logic)
			}
		}
	}
	return nil
}

// BuildPredicate renders the list as a parameterized SQL expression.
// Connectives apply left to right with no precedence, so the accumulated
// expression is parenthesized before each join; plain concatenation would
// silently reintroduce SQL's AND-over-OR precedence.
func BuildPredicate(conds []domain.Condition) (Predicate, error) {
	if err := Validate(conds); err != nil {
		return Predicate{}, err
	}

	term := func(c domain.Condition, n int) (string, any) {
		f := fields[c.Field]
		v, _ := typedValue(f.kind, c.Value)
		return fmt.Sprintf("%s %s $%d", f.column, operators[c.Operator], n), v
	}

	expr, arg := term(conds[0], 1)
	args := []any{arg}
	for i := 1; i < len(conds); i++ {
		logic, _ := normalizeLogic(conds[i-1].Logic)
		t, a := term(conds[i], len(args)+1)
		expr = fmt.Sprintf("(%s) %s %s", expr, logic, t)
		args = append(args, a)
	}
	return Predicate{SQL: "(" + expr + ")", Args: args}, nil
}

// Matches evaluates the condition list against one customer record with the
// same left-to-right semantics as BuildPredicate.
func Matches(conds []domain.Condition, c store.Customer) (bool, error) {
	if err := Validate(conds); err != nil {
		return false, err
	}

	acc, err := evalOne(conds[0], c)
	if err != nil {
		return false, err
	}
	for i := 1; i < len(conds); i++ {
		next, err := evalOne(conds[i], c)
		if err != nil {
			return false, err
		}
		logic, _ := normalizeLogic(conds[i-1].Logic)
		if logic == domain.LogicAnd {
			acc = acc && next
		} else {
			acc = acc || next
		}
	}
	return acc, nil
}

func evalOne(cond domain.Condition, c store.Customer) (bool, error) {
	f := fields[cond.Field]
	v, err := typedValue(f.kind, cond.Value)
	if err != nil {
		return false, err
	}

	var cmp int
	switch f.kind {
	case kindNumeric:
		have := c.TotalSpending
		want := v.(float64)
		switch {
		case have < want:
			cmp = -1
		case have > want:
			cmp = 1
		}
	case kindDate:
		have := c.LastVisitDate
		want := v.(time.Time)
		switch {
		case have.Before(want):
			cmp = -1
		case have.After(want):
			cmp = 1
		}
	case kindString:
		var have string
		switch cond.Field {
		case "name":
			have = c.Name
		case "email":
			have = c.Email
		case "phone":
			have = c.Phone
		}
		cmp = strings.Compare(have, v.(string))
	}

	switch cond.Operator {
	case "=":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case ">":
		return cmp > 0, nil
	case "<":
		return cmp < 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<=":
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("%w: operator %q not allowed", domain.ErrInvalidCondition, cond.Operator)
}
