package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/store"
)

// compileFilter turns a predicate into a DynamoDB filter expression
// with its attribute name and value placeholders. A nil predicate
// compiles to an empty expression.
func compileFilter(pred *store.Predicate) (string, map[string]string, map[string]types.AttributeValue, error) {
	conds := pred.Conditions()
	if len(conds) == 0 {
		return "", nil, nil, nil
	}

	var clauses []string
	names := make(map[string]string, len(conds))
	values := make(map[string]types.AttributeValue, len(conds))

	for i, cond := range conds {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)

		av, err := attributevalue.Marshal(cond.Value)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal value for %q: %w", cond.Field, err)
		}
		names[nameKey] = cond.Field
		values[valueKey] = av

		switch cond.Op {
		case store.Eq, store.Ne, store.Lt, store.Le, store.Gt, store.Ge:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", nameKey, cond.Op, valueKey))
		case store.Contains:
			if _, ok := cond.Value.(string); !ok {
				return "", nil, nil, fmt.Errorf("operator %q requires a string value, got %T", cond.Op, cond.Value)
			}
			clauses = append(clauses, fmt.Sprintf("contains(%s, %s)", nameKey, valueKey))
		case store.BeginsWith:
			if _, ok := cond.Value.(string); !ok {
				return "", nil, nil, fmt.Errorf("operator %q requires a string value, got %T", cond.Op, cond.Value)
			}
			clauses = append(clauses, fmt.Sprintf("begins_with(%s, %s)", nameKey, valueKey))
		default:
			return "", nil, nil, fmt.Errorf("unsupported operator %q", cond.Op)
		}
	}

	return strings.Join(clauses, " AND "), names, values, nil
}
