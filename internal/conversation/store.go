package conversation

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/fsx"
	"github.com/google/uuid"
)

const (
	indexFile = "index.json"

	// DefaultListLimit applies when List is called without a limit.
	DefaultListLimit = 50

	placeholderRunes = 120
)

// DirResolver returns the conversations directory of a project.
type DirResolver func(projectID string) (string, error)

// Store saves conversation records and keeps conversations/index.json in
// step. Writes for one project are serialized; the index is rewritten via
// temp file and rename so a crash never leaves it half written.
type Store struct {
	dirs   DirResolver
	lanes  *projectLanes
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a Store. now defaults to time.Now.
func NewStore(dirs DirResolver, now func() time.Time, logger *slog.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dirs:   dirs,
		lanes:  newProjectLanes(),
		now:    now,
		logger: logger.With("component", "conversations"),
	}
}

// Save writes a new record file and appends its index entry with a
// placeholder summary. A missing id is generated. Record files are written
// once: saving an id already in the index is a CONFLICT.
func (s *Store) Save(ctx context.Context, projectID string, rec Record) (IndexItem, error) {
	if err := rec.Validate(); err != nil {
		return IndexItem{}, err
	}
	dir, err := s.dirs(projectID)
	if err != nil {
		return IndexItem{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.SkillsUsed == nil {
		rec.SkillsUsed = []string{}
	}

	release := s.lanes.acquire(projectID)
	defer release()
	if err := ctx.Err(); err != nil {
		return IndexItem{}, err
	}

	index, err := readIndex(dir)
	if err != nil {
		return IndexItem{}, err
	}
	// A record file without an index entry is left over from a save whose
	// index write failed; it is overwritten.
	if slices.ContainsFunc(index, func(it IndexItem) bool { return it.ID == rec.ID }) {
		return IndexItem{}, ctxengine.Errorf(ctxengine.CodeConflict, "conversation %s already exists", rec.ID)
	}
	path := filepath.Join(dir, rec.ID+".json")
	if err := fsx.WriteJSONAtomic(path, rec, 0o644); err != nil {
		return IndexItem{}, ctxengine.Wrap(ctxengine.CodeIOError, err, "write conversation "+rec.ID)
	}

	item := IndexItem{
		ID:              rec.ID,
		ArticleID:       rec.ArticleID,
		FullPath:        path,
		SkillsUsed:      rec.SkillsUsed,
		Summary:         placeholderSummary(rec),
		SummaryQuality:  QualityPlaceholder,
		UserPreferences: rec.UserPreferences,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       now,
	}
	index = append(index, item)
	if err := writeIndex(dir, index); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("removing orphaned conversation", "project", projectID, "conversation", rec.ID, "error", rmErr)
		}
		return IndexItem{}, err
	}

	s.logger.Debug("conversation saved", "project", projectID, "conversation", rec.ID)
	return item, nil
}

// List returns index entries newest first, optionally restricted to one
// article. A non-positive limit means DefaultListLimit.
func (s *Store) List(_ context.Context, projectID, articleID string, limit int) ([]IndexItem, error) {
	dir, err := s.dirs(projectID)
	if err != nil {
		return nil, err
	}
	index, err := readIndex(dir)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	items := make([]IndexItem, 0, min(limit, len(index)))
	for _, it := range index {
		if articleID == "" || it.ArticleID == articleID {
			items = append(items, it)
		}
	}
	slices.SortStableFunc(items, func(a, b IndexItem) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Get reads the full record of one conversation.
func (s *Store) Get(_ context.Context, projectID, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return Record{}, err
	}
	dir, err := s.dirs(projectID)
	if err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ctxengine.Errorf(ctxengine.CodeNotFound, "conversation %s not found", id)
	}
	if err != nil {
		return Record{}, ctxengine.Wrap(ctxengine.CodeIOError, err, "read conversation "+id)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, ctxengine.Wrap(ctxengine.CodeParseError, err, "decode conversation "+id)
	}
	return rec, nil
}

// UpdateSummary replaces the summary of one index entry in place.
func (s *Store) UpdateSummary(ctx context.Context, projectID, id, summary string, quality SummaryQuality) (IndexItem, error) {
	dir, err := s.dirs(projectID)
	if err != nil {
		return IndexItem{}, err
	}

	release := s.lanes.acquire(projectID)
	defer release()
	if err := ctx.Err(); err != nil {
		return IndexItem{}, err
	}

	index, err := readIndex(dir)
	if err != nil {
		return IndexItem{}, err
	}
	i := slices.IndexFunc(index, func(it IndexItem) bool { return it.ID == id })
	if i < 0 {
		return IndexItem{}, ctxengine.Errorf(ctxengine.CodeNotFound, "conversation %s not in index", id)
	}
	index[i].Summary = summary
	index[i].SummaryQuality = quality
	index[i].UpdatedAt = s.now().UTC()
	if err := writeIndex(dir, index); err != nil {
		return IndexItem{}, err
	}
	return index[i], nil
}

// Pending returns the entries whose summary is still a placeholder, oldest
// first.
func (s *Store) Pending(_ context.Context, projectID string) ([]IndexItem, error) {
	dir, err := s.dirs(projectID)
	if err != nil {
		return nil, err
	}
	index, err := readIndex(dir)
	if err != nil {
		return nil, err
	}
	var out []IndexItem
	for _, it := range index {
		if it.SummaryQuality == QualityPlaceholder {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b IndexItem) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func readIndex(dir string) ([]IndexItem, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []IndexItem{}, nil
	}
	if err != nil {
		return nil, ctxengine.Wrap(ctxengine.CodeIOError, err, "read conversation index")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []IndexItem{}, nil
	}
	var index []IndexItem
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, ctxengine.Wrap(ctxengine.CodeParseError, err, "decode conversation index")
	}
	return index, nil
}

func writeIndex(dir string, index []IndexItem) error {
	if err := fsx.WriteJSONAtomic(filepath.Join(dir, indexFile), index, 0o644); err != nil {
		return ctxengine.Wrap(ctxengine.CodeIOError, err, "write conversation index")
	}
	return nil
}

// placeholderSummary is the first user message, shortened.
func placeholderSummary(rec Record) string {
	for _, m := range rec.Messages {
		if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
			return truncateRunes(strings.Join(strings.Fields(m.Content), " "), placeholderRunes)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + ctxengine.CompressionMarker
}
