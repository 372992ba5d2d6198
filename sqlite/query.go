package sqlite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jacentio/lattice/store"
)

// fieldName restricts predicate fields to plain identifiers so they can
// be spliced into a json path without escaping.
var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// compileWhere turns a predicate into a WHERE fragment (" AND ..." per
// condition) over json_extract, plus its bind arguments. A nil
// predicate compiles to an empty fragment.
func compileWhere(pred *store.Predicate) (string, []any, error) {
	var sb strings.Builder
	var args []any

	for _, cond := range pred.Conditions() {
		if !fieldName.MatchString(cond.Field) {
			return "", nil, fmt.Errorf("invalid predicate field %q", cond.Field)
		}
		path := "json_extract(doc, '$." + cond.Field + "')"

		switch cond.Op {
		case store.Eq, store.Ne, store.Lt, store.Le, store.Gt, store.Ge:
			sb.WriteString(" AND " + path + " " + string(cond.Op) + " ?")
			args = append(args, cond.Value)
		case store.Contains:
			v, ok := cond.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("operator %q requires a string value, got %T", cond.Op, cond.Value)
			}
			sb.WriteString(" AND instr(" + path + ", ?) > 0")
			args = append(args, v)
		case store.BeginsWith:
			v, ok := cond.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("operator %q requires a string value, got %T", cond.Op, cond.Value)
			}
			sb.WriteString(" AND substr(" + path + ", 1, length(?)) = ?")
			args = append(args, v, v)
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", cond.Op)
		}
	}

	return sb.String(), args, nil
}
