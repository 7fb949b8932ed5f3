package dbstatus

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/dac/internal/database"
	"github.com/koustreak/dac/internal/errs"
)

// DefaultSchema is the Postgres schema scanned when none is configured.
const DefaultSchema = "public"

// Queries is the fixed set of catalog statements one aggregation runs.
// Every statement is parameterless; the schema name is baked in when the set
// is built.
//
// Expected result shapes:
//
//	Identity     one row: version, user, database, server_time, uptime (text)
//	Tables       one row: count
//	Indexes      one row: count
//	Connections  one row: count
//	Sizes        one row: db_bytes, tables_bytes (text, base 10)
//	TopTables    up to MaxTopTables rows: name, total_bytes (text), largest first
type Queries struct {
	Identity    string
	Tables      string
	Indexes     string
	Connections string
	Sizes       string
	TopTables   string
}

var schemaName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QueriesFor returns the statements for driver scoped to schema. An empty
// schema means DefaultSchema on Postgres and the connection's current
// database on MySQL.
func QueriesFor(driver database.Driver, schema string) (Queries, error) {
	if schema != "" && !schemaName.MatchString(schema) {
		return Queries{}, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("invalid schema name %q", schema))
	}

	switch driver {
	case database.DriverPostgres:
		if schema == "" {
			schema = DefaultSchema
		}
		return PostgresQueries(schema), nil
	case database.DriverMySQL:
		return MySQLQueries(schema), nil
	default:
		return Queries{}, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("no status queries for driver %q", driver))
	}
}

// PostgresQueries builds the PostgreSQL catalog statements for schema.
func PostgresQueries(schema string) Queries {
	s := quoteLiteral(schema)
	return Queries{
		Identity: `
			SELECT version(),
			       current_user::text,
			       current_database()::text,
			       to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"'),
			       to_char(date_trunc('second', now() - pg_postmaster_start_time()), 'DD "d" HH24:MI:SS')`,
		Tables: fmt.Sprintf(`
			SELECT count(*)
			FROM information_schema.tables
			WHERE table_schema = %s
			  AND table_type   = 'BASE TABLE'`, s),
		Indexes: fmt.Sprintf(`
			SELECT count(*)
			FROM pg_indexes
			WHERE schemaname = %s`, s),
		Connections: `
			SELECT count(*)
			FROM pg_stat_activity
			WHERE datname = current_database()`,
		Sizes: fmt.Sprintf(`
			SELECT pg_database_size(current_database())::text,
			       coalesce(sum(pg_total_relation_size(c.oid)), 0)::text
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = %s
			  AND c.relkind = 'r'`, s),
		TopTables: fmt.Sprintf(`
			SELECT c.relname::text,
			       pg_total_relation_size(c.oid)::text
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = %s
			  AND c.relkind = 'r'
			ORDER BY pg_total_relation_size(c.oid) DESC, c.relname
			LIMIT %d`, s, MaxTopTables),
	}
}

// MySQLQueries builds the MySQL catalog statements. In MySQL a schema is a
// database; an empty schema scopes everything to DATABASE().
func MySQLQueries(schema string) Queries {
	s := "DATABASE()"
	if schema != "" {
		s = quoteLiteral(schema)
	}
	return Queries{
		Identity: `
			SELECT VERSION(),
			       CURRENT_USER(),
			       COALESCE(DATABASE(), ''),
			       DATE_FORMAT(UTC_TIMESTAMP(), '%Y-%m-%dT%H:%i:%sZ'),
			       COALESCE((
			           SELECT CONCAT(FLOOR(VARIABLE_VALUE / 86400), ' d ',
			                         TIME_FORMAT(SEC_TO_TIME(VARIABLE_VALUE % 86400), '%H:%i:%s'))
			           FROM performance_schema.global_status
			           WHERE VARIABLE_NAME = 'Uptime'), '')`,
		Tables: fmt.Sprintf(`
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = %s
			  AND table_type   = 'BASE TABLE'`, s),
		Indexes: fmt.Sprintf(`
			SELECT COUNT(DISTINCT table_name, index_name)
			FROM information_schema.statistics
			WHERE table_schema = %s`, s),
		Connections: `
			SELECT COUNT(*)
			FROM information_schema.processlist
			WHERE db = DATABASE()`,
		Sizes: fmt.Sprintf(`
			SELECT CAST((SELECT COALESCE(SUM(data_length + index_length), 0)
			             FROM information_schema.tables
			             WHERE table_schema = DATABASE()) AS CHAR),
			       CAST(COALESCE(SUM(data_length + index_length), 0) AS CHAR)
			FROM information_schema.tables
			WHERE table_schema = %s
			  AND table_type   = 'BASE TABLE'`, s),
		TopTables: fmt.Sprintf(`
			SELECT table_name,
			       CAST(COALESCE(data_length + index_length, 0) AS CHAR)
			FROM information_schema.tables
			WHERE table_schema = %s
			  AND table_type   = 'BASE TABLE'
			ORDER BY COALESCE(data_length + index_length, 0) DESC, table_name
			LIMIT %d`, s, MaxTopTables),
	}
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
