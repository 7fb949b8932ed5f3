// Package dbstatus assembles the database Status Record shown on the DAC
// status page: server identity, catalog counts, storage totals and the
// largest tables of one schema.
package dbstatus

// MaxTopTables caps Record.TopTables.
const MaxTopTables = 5

// FallbackMessage is reported when a failure carries no message of its own.
const FallbackMessage = "Falha ao obter status do banco"

// Record is the merged status of one catalog, built fresh on every call.
type Record struct {
	Connected  bool       `json:"connected"`
	Version    string     `json:"version"`
	User       string     `json:"user"`
	Database   string     `json:"database"`
	ServerTime string     `json:"server_time"`
	Uptime     string     `json:"uptime"`
	Totals     Totals     `json:"totals"`
	TopTables  []TopTable `json:"top_tables"`
}

// Totals holds catalog counts and storage sizes.
//
// TablesBytes sums the base tables of the scanned schema while DBBytes covers
// the whole database (indexes, TOAST and other schemas included), so the two
// are not expected to match.
type Totals struct {
	Tables      int64 `json:"tables"`
	Indexes     int64 `json:"indexes"`
	Connections int64 `json:"connections"`
	DBBytes     int64 `json:"db_bytes"`
	TablesBytes int64 `json:"tables_bytes"`
}

// TopTable is one entry of the largest-relations list.
type TopTable struct {
	Name       string `json:"name"`
	TotalBytes int64  `json:"total_bytes"`
}

// Failure is the only payload rendered when a status cannot be produced.
// It never carries partial totals.
type Failure struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error"`
}

// NewFailure builds the failure payload for err, using FallbackMessage when
// err is nil or has an empty message.
func NewFailure(err error) Failure {
	msg := FallbackMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Failure{Connected: false, Error: msg}
}
