package dbclient

import (
	"fmt"
	"strings"

	"swissdamed/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

// mysqlIndexPrefix keeps TEXT index keys within the utf8mb4 key limit.
const mysqlIndexPrefix = 191

var mysqlDialect = dialect{
	driverName: "mysql",
	quote: func(ident string) string {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	},
	placeholder: questionMark,
	indexColumn: func(quoted string) string {
		return fmt.Sprintf("%s(%d)", quoted, mysqlIndexPrefix)
	},
}

// buildMySQLDSN constructs a MySQL DSN from a DatabaseConnection.
func buildMySQLDSN(conn *domain.DatabaseConnection, password string) string {
	if conn.URI != "" {
		return conn.URI
	}
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?charset=utf8mb4
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4",
		conn.Username, password, conn.Host, port, conn.Database,
	)
	if conn.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
