package client

import "github.com/relaycore/mysql-binlog/mysql"

// SelectPerRowCallback is invoked once per decoded row when streaming a resultset
// instead of buffering it, letting callers process very large SELECTs without holding
// every row in memory at once.
type SelectPerRowCallback func(row []mysql.FieldValue) error

// SelectPerResultCallback is invoked once, after the column definitions are known but
// before any row is delivered, so a caller can validate field count/types before
// committing to process the stream.
type SelectPerResultCallback func(result *mysql.Result) error
