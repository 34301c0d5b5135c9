package dbclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"swissdamed/internal/domain"
	"swissdamed/internal/etl"
)

// DefaultTable is the target table or collection when a connection names none.
const DefaultTable = "swissdamed"

// PublishResult summarizes one publish.
type PublishResult struct {
	Target  string   `json:"target"`
	Table   string   `json:"table"`
	Rows    int      `json:"rows"`
	Indexes []string `json:"indexes"`
}

// Publisher copies a built table into an external database, replacing
// whatever the target table held before.
type Publisher interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Publish replaces the target table with t. Readers see either the
	// old contents or the complete new contents.
	Publish(ctx context.Context, t *etl.Table) (*PublishResult, error)

	// Close releases the connection.
	Close() error
}

// NewPublisher creates a Publisher for the given database connection.
// The password is resolved separately (see Password).
func NewPublisher(conn *domain.DatabaseConnection, password string) (Publisher, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLitePublisher(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLPublisher(mysqlDialect, buildMySQLDSN(conn, password), conn)
	case domain.DatabaseDriverPostgres:
		return newSQLPublisher(postgresDialect, buildPostgresDSN(conn, password), conn)
	case domain.DatabaseDriverMongoDB:
		return newMongoPublisher(conn, password)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}

// Password resolves the connection's password reference. A reference
// that cannot be resolved is an error, not an empty password.
func Password(conn *domain.DatabaseConnection, resolve func(string) (string, error)) (string, error) {
	if conn.PasswordEnv == "" {
		return "", nil
	}
	pw, err := resolve(conn.PasswordEnv)
	if err != nil {
		return "", fmt.Errorf("password: %w", err)
	}
	return pw, nil
}

// targetName labels a connection in logs and errors.
func targetName(conn *domain.DatabaseConnection) string {
	if conn.Name != "" {
		return conn.Name
	}
	return string(conn.Driver)
}

func tableName(conn *domain.DatabaseConnection) string {
	if t := strings.TrimSpace(conn.Table); t != "" {
		return t
	}
	return DefaultTable
}

// PublishAll publishes t to every connection in order. A failing target
// does not stop the others; the errors are joined.
func PublishAll(ctx context.Context, conns []domain.DatabaseConnection, t *etl.Table, resolve func(string) (string, error)) ([]PublishResult, error) {
	var (
		results []PublishResult
		errs    []error
	)
	for i := range conns {
		conn := &conns[i]
		name := targetName(conn)
		password, err := Password(conn, resolve)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", name, err))
			continue
		}
		p, err := NewPublisher(conn, password)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", name, err))
			continue
		}
		res, err := p.Publish(ctx, t)
		p.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", name, err))
			continue
		}
		log.Printf("publish: %s: %d rows into %s", name, res.Rows, res.Table)
		results = append(results, *res)
	}
	return results, errors.Join(errs...)
}

// indexName names the index on col; unique per target table.
func indexName(table, col string) string {
	return "idx_" + table + "_" + col
}
