package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// DatabaseConnection holds the metadata for connecting to an external
// database that receives a copy of the built table.
type DatabaseConnection struct {
	Name     string         `json:"name" yaml:"name"`
	Driver   DatabaseDriver `json:"driver" yaml:"driver"`
	Host     string         `json:"host" yaml:"host"`         // hostname or file path (sqlite)
	Port     int            `json:"port" yaml:"port"`         // 0 for sqlite
	Database string         `json:"database" yaml:"database"` // db name or empty for sqlite
	Username string         `json:"username" yaml:"username"`
	SSLMode  string         `json:"sslMode" yaml:"sslMode"`

	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `json:"passwordEnv" yaml:"passwordEnv"`
	// URI overrides the host/port fields (mongodb+srv://..., full DSNs).
	URI string `json:"uri" yaml:"uri"`
	// Table is the target table (SQL) or collection (MongoDB).
	Table string `json:"table" yaml:"table"`
}
