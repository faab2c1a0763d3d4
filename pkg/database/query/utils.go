package query

import "strconv"

// PaginateQuery appends id based cursor paging to query, which is expected in
// the form "SELECT ... WHERE (...)" with the brackets included.
//
//	PaginateQuery("SELECT * FROM t WHERE (subject = $1)", args, cursor, 10, Ascending)
//	> "SELECT * FROM t WHERE (subject = $1) AND id > $2 ORDER BY id ASC LIMIT $3"
func PaginateQuery(query string, args []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}) {
	if len(cursor) > 0 {
		args = append(args, cursor.ToUint64())
		query += direction.afterCursor() + strconv.Itoa(len(args))
	}

	query += direction.orderByClause()

	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	return query, args
}
