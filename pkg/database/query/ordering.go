package query

// Ordering is the direction records are returned in, by id
type Ordering uint

const (
	Ascending Ordering = iota
	Descending
)

func (o Ordering) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

func (o Ordering) orderByClause() string {
	if o == Descending {
		return " ORDER BY id DESC"
	}
	return " ORDER BY id ASC"
}

// afterCursor is the comparison selecting ids past a cursor in this ordering
func (o Ordering) afterCursor() string {
	if o == Descending {
		return " AND id < $"
	}
	return " AND id > $"
}
