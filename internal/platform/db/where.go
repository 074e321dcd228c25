package db

import (
	"fmt"
	"strings"
)

// Where accumulates AND-ed SQL conditions with numbered placeholders.
// Conditions carry a single %d verb for their placeholder, for example
// "patient_id = $%d".
type Where struct {
	conds []string
	args  []interface{}
}

func (w *Where) Add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

// String renders " WHERE ..." or "" when no condition was added.
func (w *Where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the bound values in placeholder order.
func (w *Where) Args() []interface{} {
	return w.args
}

// Page appends LIMIT/OFFSET placeholders. A non-positive limit binds NULL,
// which returns every row.
func (w *Where) Page(limit, offset int) string {
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	w.args = append(w.args, lim, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}
