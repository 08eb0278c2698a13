// Package kvdb is a small bbolt-backed key-value store used for build
// metadata: per-source fingerprints and build summaries. The search index
// artifact itself never lives here.
package kvdb

const (
	// SourcesBucket holds one fingerprint entry per configured document source.
	SourcesBucket = "sources"
	// BuildsBucket holds one summary entry per completed build.
	BuildsBucket = "builds"
)

type DB interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	Close() error
}
