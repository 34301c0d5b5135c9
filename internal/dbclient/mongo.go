package dbclient

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"swissdamed/internal/domain"
	"swissdamed/internal/etl"
)

// mongoBatch bounds one InsertMany call.
const mongoBatch = 1000

// mongoPublisher writes one document per row into a collection.
type mongoPublisher struct {
	client     *mongo.Client
	dbName     string
	collection string
	target     string
}

// buildMongoURI returns the connection URI and database name. A full
// mongodb:// or mongodb+srv:// string in URI (or Host) is used as is,
// with Atlas-style <password> placeholders filled in.
func buildMongoURI(conn *domain.DatabaseConnection, password string) (uri, dbName string) {
	raw := conn.URI
	if raw == "" && (strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://")) {
		raw = conn.Host
	}

	if raw != "" {
		uri = raw
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, password, conn.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
		}
	}

	dbName = conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	if dbName == "" {
		dbName = "test"
	}
	return uri, dbName
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		if strings.HasPrefix(rest, prefix) {
			rest = rest[len(prefix):]
			break
		}
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return ""
	}
	name := rest[slash+1:]
	if q := strings.Index(name, "?"); q != -1 {
		name = name[:q]
	}
	return name
}

func newMongoPublisher(conn *domain.DatabaseConnection, password string) (*mongoPublisher, error) {
	uri, dbName := buildMongoURI(conn, password)

	logURI := uri
	if password != "" {
		logURI = strings.ReplaceAll(logURI, password, "***")
	}
	log.Printf("publish mongo: connecting to %s (database %s)", logURI, dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoPublisher{
		client:     client,
		dbName:     dbName,
		collection: tableName(conn),
		target:     targetName(conn),
	}, nil
}

func (m *mongoPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// rowDocuments converts rows to documents keyed by column, in column order.
func rowDocuments(t *etl.Table) []any {
	cols := t.Header()
	docs := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		doc := make(bson.D, len(cols))
		for j, c := range cols {
			doc[j] = bson.E{Key: c, Value: row[j]}
		}
		docs[i] = doc
	}
	return docs
}

// Publish loads a staging collection, indexes it, then renames it over
// the target with dropTarget, so readers never see a partial collection.
func (m *mongoPublisher) Publish(ctx context.Context, t *etl.Table) (*PublishResult, error) {
	db := m.client.Database(m.dbName)
	staging := m.collection + "__staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	coll := db.Collection(staging)
	cleanup := func() { coll.Drop(context.WithoutCancel(ctx)) }

	docs := rowDocuments(t)
	for start := 0; start < len(docs); start += mongoBatch {
		end := min(start+mongoBatch, len(docs))
		if _, err := coll.InsertMany(ctx, docs[start:end]); err != nil {
			cleanup()
			return nil, fmt.Errorf("insert documents %d-%d: %w", start, end, err)
		}
	}

	var models []mongo.IndexModel
	var names []string
	for _, col := range t.Columns.LookupColumns() {
		name := indexName(m.collection, col)
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: col, Value: 1}},
			Options: options.Index().SetName(name),
		})
		names = append(names, name)
	}
	if len(models) > 0 {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			cleanup()
			return nil, fmt.Errorf("create indexes: %w", err)
		}
	}

	rename := bson.D{
		{Key: "renameCollection", Value: m.dbName + "." + staging},
		{Key: "to", Value: m.dbName + "." + m.collection},
		{Key: "dropTarget", Value: true},
	}
	if err := m.client.Database("admin").RunCommand(ctx, rename).Err(); err != nil {
		cleanup()
		return nil, fmt.Errorf("rename collection: %w", err)
	}
	return &PublishResult{Target: m.target, Table: m.collection, Rows: len(t.Rows), Indexes: names}, nil
}
