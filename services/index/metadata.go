package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meghashyamc/glimpse/config"
	"github.com/meghashyamc/glimpse/db/kvdb"
)

// MetadataStore persists build bookkeeping between runs. It is optional:
// a nil store disables bookkeeping without affecting the built artifact.
type MetadataStore interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	Close() error
}

// recordBuild stores the build summary and refreshes per-source fingerprints.
// Failures here are logged and swallowed: metadata is bookkeeping, not part
// of the artifact.
func (s *Service) recordBuild(summary *BuildSummary, startedAt time.Time) {
	if s.metadataStore == nil {
		return
	}

	record := kvdb.BuildRecord{
		BuildID:       uuid.New().String(),
		StartedAt:     startedAt.UTC(),
		Duration:      summary.Duration.String(),
		DocumentCount: summary.DocumentCount,
		WordCount:     summary.WordCount,
		PostingCount:  summary.PostingCount,
		IndexBytes:    summary.IndexBytes,
		WarningCount:  len(summary.Warnings),
	}
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("failed to marshal build record", "err", err.Error())
		return
	}
	if err := s.metadataStore.Set(kvdb.BuildsBucket, record.BuildID, string(data)); err != nil {
		s.logger.Error("failed to store build record", "err", err.Error())
	}

	indexedAt := startedAt.UTC()
	for _, file := range s.cfg.Input.Files {
		s.recordSourceFingerprint(file, indexedAt)
	}
}

func (s *Service) recordSourceFingerprint(file config.FileConfig, indexedAt time.Time) {
	fingerprint := kvdb.SourceFingerprint{LastIndexed: indexedAt}

	if !strings.HasPrefix(file.Path, "http://") && !strings.HasPrefix(file.Path, "https://") {
		path := file.Path
		if !filepath.IsAbs(path) && s.cfg.Input.BaseDirectory != "" {
			path = filepath.Join(s.cfg.Input.BaseDirectory, path)
		}
		if info, err := os.Stat(path); err == nil {
			fingerprint.Size = info.Size()
			fingerprint.ModTime = info.ModTime().UTC()
		}
	}

	data, err := json.Marshal(fingerprint)
	if err != nil {
		s.logger.Error("failed to marshal source fingerprint", "path", file.Path, "err", err.Error())
		return
	}
	if err := s.metadataStore.Set(kvdb.SourcesBucket, file.Path, string(data)); err != nil {
		s.logger.Error("failed to store source fingerprint", "path", file.Path, "err", err.Error())
	}
}

// changedSources reports which configured sources differ from their stored
// fingerprints. Purely informational: the build always re-indexes everything
// so the artifact stays reproducible.
func (s *Service) changedSources() []string {
	if s.metadataStore == nil {
		return nil
	}

	var changed []string
	for _, file := range s.cfg.Input.Files {
		value, err := s.metadataStore.Get(kvdb.SourcesBucket, file.Path)
		if err != nil {
			changed = append(changed, file.Path)
			continue
		}
		var fingerprint kvdb.SourceFingerprint
		if err := json.Unmarshal([]byte(value), &fingerprint); err != nil {
			changed = append(changed, file.Path)
			continue
		}
		if s.sourceDiffers(file, fingerprint) {
			changed = append(changed, file.Path)
		}
	}
	return changed
}

func (s *Service) sourceDiffers(file config.FileConfig, fingerprint kvdb.SourceFingerprint) bool {
	if strings.HasPrefix(file.Path, "http://") || strings.HasPrefix(file.Path, "https://") {
		// Remote sources can't be cheaply fingerprinted.
		return false
	}
	path := file.Path
	if !filepath.IsAbs(path) && s.cfg.Input.BaseDirectory != "" {
		path = filepath.Join(s.cfg.Input.BaseDirectory, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Size() != fingerprint.Size || info.ModTime().UTC().After(fingerprint.LastIndexed)
}

func describeChangedSources(changed []string) string {
	if len(changed) == 0 {
		return "no sources changed since last build"
	}
	return fmt.Sprintf("%d sources changed since last build", len(changed))
}
