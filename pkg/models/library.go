package models

import (
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// Library scan-shape patterns: a library is either organized with an
// explicit series directory under each library path (SeriesBased), or the
// deepest directory containing books is treated as the series
// (CollectionBased).
const (
	//tygo:emit export type LibraryPattern = typeof LibraryPatternSeriesBased | typeof LibraryPatternCollectionBased;
	LibraryPatternSeriesBased     = "series_based"
	LibraryPatternCollectionBased = "collection_based"
)

// LibraryConfig holds scan/generation behavior for a Library. It is stored
// as a JSON column (config).
type LibraryConfig struct {
	Pattern               string   `json:"pattern"`
	ConvertRarToZip       bool     `json:"convert_rar_to_zip"`
	HardDeleteConversions bool     `json:"hard_delete_conversions"`
	IgnoreRules           []string `json:"ignore_rules,omitempty"`
	ThumbnailWidth        int      `json:"thumbnail_width"`
	ThumbnailHeight       int      `json:"thumbnail_height"`
	ThumbnailFormat       string   `json:"thumbnail_format"`
	ThumbnailQuality      int      `json:"thumbnail_quality"`
	ScanConcurrency       int      `json:"scan_concurrency,omitempty"`
	ThumbnailConcurrency  int      `json:"thumbnail_concurrency,omitempty"`
}

// DefaultLibraryConfig returns the configuration used when a library is
// created without an explicit one.
func DefaultLibraryConfig() LibraryConfig {
	return LibraryConfig{
		Pattern:          LibraryPatternSeriesBased,
		ThumbnailWidth:   320,
		ThumbnailHeight:  480,
		ThumbnailFormat:  "webp",
		ThumbnailQuality: 80,
	}
}

type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l" tstype:"-"`

	ID            string         `bun:",pk,nullzero" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Name          string         `bun:",nullzero" json:"name"`
	Path          string         `bun:",nullzero,unique" json:"path"`
	Status        string         `bun:",nullzero,default:'ready'" json:"status" tstype:"FileStatus"`
	Config        string         `bun:",nullzero" json:"-"`
	ConfigParsed  *LibraryConfig `bun:"-" json:"config" tstype:"LibraryConfig"`
	LastScannedAt *time.Time     `json:"last_scanned_at,omitempty"`
	DeletedAt     *time.Time     `bun:",soft_delete" json:"-"`
}

// UnmarshalConfig parses Config into ConfigParsed. Called after a row is
// loaded from the database, mirroring Job.UnmarshalData.
func (l *Library) UnmarshalConfig() error {
	cfg := DefaultLibraryConfig()
	l.ConfigParsed = &cfg
	if l.Config == "" {
		return nil
	}
	return json.Unmarshal([]byte(l.Config), l.ConfigParsed)
}

// MarshalConfig serializes ConfigParsed into Config for persistence.
func (l *Library) MarshalConfig() error {
	if l.ConfigParsed == nil {
		cfg := DefaultLibraryConfig()
		l.ConfigParsed = &cfg
	}
	data, err := json.Marshal(l.ConfigParsed)
	if err != nil {
		return err
	}
	l.Config = string(data)
	return nil
}
