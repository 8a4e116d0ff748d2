package index

// RecordIndex defines the interface for record indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type RecordIndex interface {
	IndexFile(path string, data []byte) error
	UpsertRecord(r RecordRow, body string) error
	DeleteRecord(path string) error
	GetChecksum(path string) (string, error)
	GetRecord(path string) (*RecordRow, error)
	AllChecksums() (map[string]string, error)
	Search(q Query) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies RecordIndex at compile time.
var _ RecordIndex = (*DB)(nil)
