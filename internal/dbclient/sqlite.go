package dbclient

import (
	"fmt"

	"swissdamed/internal/domain"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	driverName:       "sqlite",
	quote:            doubleQuote,
	placeholder:      questionMark,
	indexColumn:      plainColumn,
	transactionalDDL: true,
}

// newSQLitePublisher opens an external SQLite file (Host holds the path)
// in WAL mode with a busy timeout, so readers keep working during a publish.
func newSQLitePublisher(conn *domain.DatabaseConnection) (*sqlPublisher, error) {
	path := conn.Host
	if conn.URI != "" {
		path = conn.URI
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite target needs a file path in host")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return newSQLPublisher(sqliteDialect, dsn, conn)
}
