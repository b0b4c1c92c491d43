package client

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pingcap/errors"

	_ "github.com/go-sql-driver/mysql"
	"github.com/relaycore/mysql-binlog/mysql"
)

// SQLExecutor is the alternative QueryExecutor: instead of the hand-rolled text
// protocol in Conn, it drives queries through database/sql and the upstream
// go-sql-driver/mysql driver (via sqlx for its NamedQuery/Queryx conveniences). The
// binlog syncer's handshake code depends only on the QueryExecutor interface, so either
// this or Conn can be handed to it interchangeably.
type SQLExecutor struct {
	db *sqlx.DB
}

// NewSQLExecutor opens a database/sql pool against dsn (the go-sql-driver/mysql DSN
// form, e.g. "user:pass@tcp(host:3306)/").
func NewSQLExecutor(dsn string) (*SQLExecutor, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &SQLExecutor{db: db}, nil
}

func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

// Execute runs query and adapts the database/sql result into the same mysql.Result
// shape Conn.Execute produces, so callers of the QueryExecutor interface don't need to
// know which implementation they were handed.
func (e *SQLExecutor) Execute(query string) (*mysql.Result, error) {
	rows, err := e.db.Queryx(query)
	if err != nil {
		// DDL/DML statements return no rows at all from database/sql's Query path in a
		// way we can inspect here; fall back to Exec for affected-rows reporting.
		res, execErr := e.db.Exec(query)
		if execErr != nil {
			return nil, errors.Trace(err)
		}
		affected, _ := res.RowsAffected()
		lastID, _ := res.LastInsertId()
		r := mysql.NewResultReserveResultset(0)
		r.AffectedRows = uint64(affected)
		if lastID > 0 {
			r.InsertId = uint64(lastID)
		}
		return r, nil
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := mysql.NewResultReserveResultset(len(cols))
	for i, col := range cols {
		result.Fields[i] = &mysql.Field{Name: []byte(col.Name())}
		result.FieldNames[col.Name()] = i
	}

	rawVals := make([]sql.RawBytes, len(cols))
	scanArgs := make([]interface{}, len(cols))
	for i := range rawVals {
		scanArgs[i] = &rawVals[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Trace(err)
		}

		row := make([]mysql.FieldValue, len(cols))
		for i, v := range rawVals {
			if v == nil {
				row[i] = mysql.FieldValue{Type: mysql.FieldValueTypeNull}
			} else {
				row[i] = mysql.NewStringFieldValue(append([]byte(nil), v...))
			}
		}
		result.Values = append(result.Values, row)
	}

	return result, errors.Trace(rows.Err())
}
