// Package predicate evaluates a command.Criteria tree against a record,
// grounded on the teacher's storage_engine/query_executor condition
// evaluator (same operator set, same recursive AND/OR walk), extended
// with BETWEEN/IN/LIKE/IS NULL per §4.4.
package predicate

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"sawitdb/command"
	"sawitdb/record"
)

// Eval reports whether rec satisfies c. A nil c matches everything.
func Eval(rec *record.Record, c *command.Criteria) (bool, error) {
	if c == nil {
		return true, nil
	}
	switch c.Op {
	case command.OpAnd:
		for _, child := range c.Children {
			ok, err := Eval(rec, child)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case command.OpOr:
		for _, child := range c.Children {
			ok, err := Eval(rec, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case command.OpIsNull:
		v, _ := rec.Get(c.Field)
		return v.Kind == record.KindNull, nil
	case command.OpNotNull:
		v, ok := rec.Get(c.Field)
		return ok && v.Kind != record.KindNull, nil
	case command.OpBetween:
		v, _ := rec.Get(c.Field)
		lo := record.FromAny(c.Value)
		hi := record.FromAny(c.Value2)
		return record.Compare(v, lo) >= 0 && record.Compare(v, hi) <= 0, nil
	case command.OpIn, command.OpNotIn:
		v, _ := rec.Get(c.Field)
		found := false
		for _, raw := range c.Values {
			if v.Equal(record.FromAny(raw)) {
				found = true
				break
			}
		}
		if c.Op == command.OpNotIn {
			return !found, nil
		}
		return found, nil
	case command.OpLike:
		v, _ := rec.Get(c.Field)
		pattern, ok := c.Value.(string)
		if !ok {
			return false, errors.New("predicate: LIKE value must be a string")
		}
		s, _ := v.Any().(string)
		return likeMatch(s, pattern), nil
	case command.OpEq, command.OpNeq, command.OpLt, command.OpGt, command.OpLte, command.OpGte:
		v, _ := rec.Get(c.Field)
		cand := record.FromAny(c.Value)
		return compareOp(c.Op, v, cand), nil
	default:
		return false, errors.Errorf("predicate: unsupported operator %q", c.Op)
	}
}

func compareOp(op command.CriteriaOp, a, b record.Value) bool {
	switch op {
	case command.OpEq:
		return a.Equal(b)
	case command.OpNeq:
		return !a.Equal(b)
	case command.OpLt:
		return record.Compare(a, b) < 0
	case command.OpGt:
		return record.Compare(a, b) > 0
	case command.OpLte:
		return record.Compare(a, b) <= 0
	case command.OpGte:
		return record.Compare(a, b) >= 0
	}
	return false
}

// likeMatch translates a SQL LIKE pattern ('%' any run, '_' one char) into
// an anchored, case-insensitive regular expression.
func likeMatch(s, pattern string) bool {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
