package store

// Op is a comparison operator in a predicate condition.
type Op string

const (
	Eq         Op = "="
	Ne         Op = "<>"
	Lt         Op = "<"
	Le         Op = "<="
	Gt         Op = ">"
	Ge         Op = ">="
	Contains   Op = "contains"
	BeginsWith Op = "begins_with"
)

// Condition compares one record field against a value.
type Condition struct {
	// Field is the record field name as serialized by the persistence
	// context (the json tag for document backends, the attribute name
	// for DynamoDB).
	Field string

	// Op is the comparison operator.
	Op Op

	// Value is the comparand. Contains and BeginsWith require a string
	// value; the ordering operators accept strings and numbers.
	Value any
}

// Predicate is a conjunction of field conditions, evaluated by the
// persistence context during a fetch. The store never interprets it.
type Predicate struct {
	conditions []Condition
}

// Where starts a predicate with a single condition.
func Where(field string, op Op, value any) *Predicate {
	return &Predicate{conditions: []Condition{{Field: field, Op: op, Value: value}}}
}

// And appends a condition and returns the predicate for chaining.
func (p *Predicate) And(field string, op Op, value any) *Predicate {
	p.conditions = append(p.conditions, Condition{Field: field, Op: op, Value: value})
	return p
}

// Conditions returns the conditions in the order they were added.
// Safe to call on a nil predicate.
func (p *Predicate) Conditions() []Condition {
	if p == nil {
		return nil
	}
	return p.conditions
}
