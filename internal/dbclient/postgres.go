package dbclient

import (
	"fmt"
	"strconv"
	"strings"

	"swissdamed/internal/domain"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	driverName:       "postgres",
	quote:            doubleQuote,
	placeholder:      func(n int) string { return "$" + strconv.Itoa(n) },
	indexColumn:      plainColumn,
	transactionalDDL: true,
}

// buildPostgresDSN constructs a Postgres connection string from a DatabaseConnection.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	if conn.URI != "" {
		return conn.URI
	}
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		conn.Host, port, conn.Username, quoteConnValue(password), conn.Database, sslMode,
	)
}

// quoteConnValue quotes a key/value connection parameter when it holds
// spaces, quotes or backslashes.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	out := []byte{'\''}
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' || v[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	return string(append(out, '\''))
}
