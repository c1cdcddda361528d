package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/skingford/sso-web/internal/models"
)

// mysqlErrDuplicateEntry is ER_DUP_ENTRY.
const mysqlErrDuplicateEntry = 1062

// errDBUnavailable marks a missing connection so the hybrid repository can
// fall back instead of failing the request.
var errDBUnavailable = errors.New("database connection not available")

// DBGetter is a function that returns the current database connection.
// This pattern allows the repository to use the current active connection,
// supporting automatic reconnection and graceful degradation.
type DBGetter func() *sql.DB

// MySQLClientRepository implements ClientRepository for MySQL database.
// List-valued fields and metadata are stored as JSON columns.
type MySQLClientRepository struct {
	getDB DBGetter
}

// NewMySQLClientRepository creates a new MySQL client repository.
func NewMySQLClientRepository(dbGetter DBGetter) *MySQLClientRepository {
	return &MySQLClientRepository{
		getDB: dbGetter,
	}
}

const (
	insertClientQuery = `
		INSERT INTO oauth2_clients
		(client_id, client_secret_hash, client_name, grant_types, scopes, redirect_uris,
		 is_active, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectClientQuery = `
		SELECT client_id, client_secret_hash, client_name, grant_types, scopes, redirect_uris,
		       is_active, created_at, updated_at, metadata
		FROM oauth2_clients`
)

func (r *MySQLClientRepository) db() (*sql.DB, error) {
	db := r.getDB()
	if db == nil {
		return nil, errDBUnavailable
	}
	return db, nil
}

// clientRow mirrors one oauth2_clients row before its JSON columns are decoded.
type clientRow struct {
	client       models.Client
	grantTypes   []byte
	scopes       []byte
	redirectURIs sql.NullString
	metadata     sql.NullString
}

func (row *clientRow) dest() []interface{} {
	c := &row.client
	return []interface{}{
		&c.ID, &c.SecretHash, &c.Name, &row.grantTypes, &row.scopes, &row.redirectURIs,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt, &row.metadata,
	}
}

func (row *clientRow) decode() (*models.Client, error) {
	c := row.client
	c.RedirectURIs = []string{}

	columns := []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"grant_types", row.grantTypes, &c.GrantTypes},
		{"scopes", row.scopes, &c.Scopes},
		{"redirect_uris", nullStringBytes(row.redirectURIs), &c.RedirectURIs},
		{"metadata", nullStringBytes(row.metadata), &c.Metadata},
	}
	for _, col := range columns {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", col.name, err)
		}
	}
	return &c, nil
}

// CreateClient stores a new OAuth2 client. The secret must already be hashed.
func (r *MySQLClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	db, err := r.db()
	if err != nil {
		return err
	}

	encoded := make(map[string][]byte, 3)
	for name, v := range map[string]interface{}{
		"grant_types":   client.GrantTypes,
		"scopes":        client.Scopes,
		"redirect_uris": client.RedirectURIs,
	} {
		if encoded[name], err = json.Marshal(v); err != nil {
			return fmt.Errorf("failed to marshal %s: %w", name, err)
		}
	}

	metadata := sql.NullString{}
	if len(client.Metadata) > 0 {
		raw, marshalErr := json.Marshal(client.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal metadata: %w", marshalErr)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = db.ExecContext(ctx, insertClientQuery,
		client.ID, client.SecretHash, client.Name,
		encoded["grant_types"], encoded["scopes"], encoded["redirect_uris"],
		client.IsActive, client.CreatedAt, client.UpdatedAt, metadata,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return ErrClientExists
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClientByID retrieves an OAuth2 client by ID, or ErrClientNotFound.
func (r *MySQLClientRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	var row clientRow
	if err = db.QueryRowContext(ctx, selectClientQuery+` WHERE client_id = ?`, clientID).Scan(row.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return row.decode()
}

// ListActiveClients retrieves all active OAuth2 clients ordered by ID.
func (r *MySQLClientRepository) ListActiveClients(ctx context.Context) ([]*models.Client, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectClientQuery+` WHERE is_active = true ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		var row clientRow
		if err = rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		client, decodeErr := row.decode()
		if decodeErr != nil {
			return nil, decodeErr
		}
		clients = append(clients, client)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating client rows: %w", err)
	}

	return clients, nil
}

func nullStringBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}
