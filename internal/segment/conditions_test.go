package segment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"minicrm/internal/domain"
	"minicrm/internal/store"
)

func cond(field, op string, value any, logic domain.Logic) domain.Condition {
	return domain.Condition{Field: field, Operator: op, Value: value, Logic: logic}
}

func TestBuildPredicateSingle(t *testing.T) {
	p, err := BuildPredicate([]domain.Condition{
		cond("total_spending", ">=", float64(1000), ""),
	})
	require.NoError(t, err)
	require.Equal(t, "(total_spending >= $1)", p.SQL)
	require.Equal(t, []any{float64(1000)}, p.Args)
}

func TestBuildPredicateChain(t *testing.T) {
	p, err := BuildPredicate([]domain.Condition{
		cond("name", "=", "Ada", "OR"),
		cond("email", "!=", "x@y.z", "AND"),
		cond("total_spending", ">=", float64(100), ""),
	})
	require.NoError(t, err)
	// connectives apply left to right, so the accumulator is parenthesized
	require.Equal(t, "(((name = $1) OR email <> $2) AND total_spending >= $3)", p.SQL)
	require.Len(t, p.Args, 3)
}

func TestBuildPredicateDateArg(t *testing.T) {
	p, err := BuildPredicate([]domain.Condition{
		cond("last_visit_date", "<", "2024-06-01", ""),
	})
	require.NoError(t, err)
	require.Equal(t, "(last_visit_date < $1)", p.SQL)
	_, ok := p.Args[0].(time.Time)
	require.True(t, ok, "date values should be passed as time.Time")
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name  string
		conds []domain.Condition
		want  error
	}{
		{"empty list", nil, domain.ErrValidation},
		{"unknown field", []domain.Condition{cond("password", "=", "x", "")}, domain.ErrInvalidCondition},
		{"disallowed operator", []domain.Condition{cond("name", "LIKE", "x", "")}, domain.ErrInvalidCondition},
		{"sql in operator", []domain.Condition{cond("name", "= '' OR 1=1 --", "x", "")}, domain.ErrInvalidCondition},
		{"missing field", []domain.Condition{{Operator: "=", Value: "x"}}, domain.ErrInvalidCondition},
		{"missing value", []domain.Condition{{Field: "name", Operator: "="}}, domain.ErrInvalidCondition},
		{"non-numeric value", []domain.Condition{cond("total_spending", ">", "lots", "")}, domain.ErrInvalidCondition},
		{"non-string date", []domain.Condition{cond("last_visit_date", ">", float64(20240601), "")}, domain.ErrInvalidCondition},
		{"missing connective", []domain.Condition{
			cond("name", "=", "a", ""),
			cond("email", "=", "b", ""),
		}, domain.ErrInvalidCondition},
		{"bad connective", []domain.Condition{
			cond("name", "=", "a", "XOR"),
			cond("email", "=", "b", ""),
		}, domain.ErrInvalidCondition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.conds)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestValidateAcceptsTrailingLogic(t *testing.T) {
	require.NoError(t, Validate([]domain.Condition{
		cond("name", "=", "a", "AND"),
	}))
}

func TestValidateNormalizesLogicCase(t *testing.T) {
	require.NoError(t, Validate([]domain.Condition{
		cond("name", "=", "a", "and"),
		cond("email", "=", "b", ""),
	}))
}

func customer(name string, spending float64, visit string) store.Customer {
	d, _ := time.Parse("2006-01-02", visit)
	return store.Customer{Name: name, Email: name + "@example.com", Phone: "+1555", TotalSpending: spending, LastVisitDate: d}
}

func TestMatchesComparisons(t *testing.T) {
	c := customer("Ada", 1500, "2024-05-10")

	cases := []struct {
		name  string
		conds []domain.Condition
		want  bool
	}{
		{"numeric gte true", []domain.Condition{cond("total_spending", ">=", float64(1000), "")}, true},
		{"numeric gt false", []domain.Condition{cond("total_spending", ">", float64(1500), "")}, false},
		{"numeric eq", []domain.Condition{cond("total_spending", "=", float64(1500), "")}, true},
		{"numeric string value", []domain.Condition{cond("total_spending", "<=", "2000", "")}, true},
		{"date before", []domain.Condition{cond("last_visit_date", "<", "2024-06-01", "")}, true},
		{"date eq", []domain.Condition{cond("last_visit_date", "=", "2024-05-10", "")}, true},
		{"date after false", []domain.Condition{cond("last_visit_date", ">", "2024-05-10", "")}, false},
		{"string eq", []domain.Condition{cond("name", "=", "Ada", "")}, true},
		{"string neq", []domain.Condition{cond("name", "!=", "Bea", "")}, true},
		{"string lexical", []domain.Condition{cond("name", "<", "Bea", "")}, true},
		{"and chain", []domain.Condition{
			cond("total_spending", ">=", float64(1000), "AND"),
			cond("name", "=", "Ada", ""),
		}, true},
		{"or chain", []domain.Condition{
			cond("name", "=", "Bea", "OR"),
			cond("total_spending", ">", float64(1), ""),
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Matches(tc.conds, c)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

// Left-to-right with no precedence: (a OR b) AND c, not a OR (b AND c).
func TestMatchesLeftToRight(t *testing.T) {
	c := customer("Ada", 100, "2024-01-01")

	got, err := Matches([]domain.Condition{
		cond("name", "=", "Ada", "OR"),             // true
		cond("name", "=", "Bea", "AND"),            // false
		cond("total_spending", ">", float64(1e6), ""), // false
	}, c)
	require.NoError(t, err)
	require.False(t, got, "(true OR false) AND false must be false")
}

func TestMatchesCountMatchesInMemoryFilter(t *testing.T) {
	population := []store.Customer{
		customer("Ada", 1000, "2024-01-01"),
		customer("Bea", 250, "2024-02-01"),
		customer("Cyd", 1000, "2024-03-01"),
		customer("Dee", 40, "2023-01-01"),
	}
	conds := []domain.Condition{cond("total_spending", "=", float64(1000), "")}

	var n int
	for _, c := range population {
		ok, err := Matches(conds, c)
		require.NoError(t, err)
		if ok {
			n++
		}
	}
	require.Equal(t, 2, n)
}
