package repo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/foomo/snippetserver/pkg/metrics"
	"github.com/foomo/snippetserver/snippet"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultKey the backend key the collection is stored under
const DefaultKey = "snippets"

var (
	// ErrNotFound no snippet with the requested id
	ErrNotFound = errors.New("snippet not found")
	// ErrMalformed an import payload could not be read as a list of snippets
	ErrMalformed = errors.New("malformed snippets")
)

// Repo snippet repository. It holds the ordered collection in memory and
// writes all of it back to its backend after every mutation. A mutation only
// becomes visible once that write succeeded.
type (
	Repo struct {
		l        *zap.Logger
		backend  Backend
		key      string
		now      func() time.Time
		newID    func() string
		snippets []snippet.Snippet
		mu       sync.RWMutex
	}
	Option func(*Repo)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// New loads the collection stored under the repo key and returns the repo.
func New(ctx context.Context, l *zap.Logger, backend Backend, opts ...Option) (*Repo, error) {
	inst := &Repo{
		l:       l.Named("repo"),
		backend: backend,
		key:     DefaultKey,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(inst)
	}

	if err := inst.load(ctx); err != nil {
		return nil, err
	}

	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithKey(v string) Option {
	return func(o *Repo) {
		o.key = v
	}
}

func WithClock(v func() time.Time) Option {
	return func(o *Repo) {
		o.now = v
	}
}

func WithIDGenerator(v func() string) Option {
	return func(o *Repo) {
		o.newID = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// List returns all snippets in insertion order
func (r *Repo) List() []snippet.Snippet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(snippet.Snippet) bool { return true })
}

// Get returns the snippet with the given id
func (r *Repo) Get(id string) (snippet.Snippet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.snippets[i].Clone(), true
	}
	return snippet.Snippet{}, false
}

// Create appends a new snippet. Names do not need to be unique.
func (r *Repo) Create(ctx context.Context, in snippet.Input) (snippet.Snippet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(ctx, "create", in)
}

// Update merges the set fields of p into the snippet with the given id.
// Returns ErrNotFound if there is no such snippet.
func (r *Repo) Update(ctx context.Context, id string, p snippet.Patch) error {
	if err := validatePatch(p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		r.l.Debug("update of unknown snippet", zap.String("id", id))
		metrics.MutationsCounter.WithLabelValues("update", "not_found").Inc()
		return errors.Wrapf(ErrNotFound, "id %q", id)
	}

	old := r.snippets[i]
	updated := old.Apply(p)
	updated.Modified = later(r.now(), old.Modified)

	next := make([]snippet.Snippet, len(r.snippets))
	copy(next, r.snippets)
	next[i] = updated
	return r.commit(ctx, "update", next)
}

// Delete removes the snippet with the given id. Unknown ids are ignored.
func (r *Repo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]snippet.Snippet, 0, len(r.snippets))
	for _, s := range r.snippets {
		if s.ID != id {
			next = append(next, s)
		}
	}
	if len(next) == len(r.snippets) {
		r.l.Debug("delete of unknown snippet", zap.String("id", id))
	}
	return r.commit(ctx, "delete", next)
}

// Search returns all snippets whose name, description or tags contain query,
// ignoring case
func (r *Repo) Search(query string) []snippet.Snippet {
	lowerQuery := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(s snippet.Snippet) bool { return s.Matches(lowerQuery) })
}

// Completions returns the snippets usable in a document of the given language
func (r *Repo) Completions(language string) []snippet.Snippet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(s snippet.Snippet) bool { return s.IsForLanguage(language) })
}

// Folders groups the snippets by folder, folders appear in the order they were first used
func (r *Repo) Folders() []snippet.Folder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		folders = []snippet.Folder{}
		index   = map[string]int{}
	)
	for _, s := range r.snippets {
		i, ok := index[s.Folder]
		if !ok {
			i = len(folders)
			index[s.Folder] = i
			folders = append(folders, snippet.Folder{Name: s.Folder})
		}
		folders[i].Snippets = append(folders[i].Snippets, s.Clone())
	}
	return folders
}

// Duplicate creates a copy of the snippet with the given id named "<name> (Copy)"
func (r *Repo) Duplicate(ctx context.Context, id string) (snippet.Snippet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return snippet.Snippet{}, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	in := r.snippets[i].Input()
	in.Name += snippet.CopySuffix
	return r.create(ctx, "duplicate", in)
}

// Import appends all records of data with fresh ids and timestamps. Records
// may be partial, missing fields get the same defaults as in Create.
// Either all records are added or none.
func (r *Repo) Import(ctx context.Context, data []byte, format Format) (int, error) {
	records, err := decodeSnippets(format, data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	next := make([]snippet.Snippet, len(r.snippets), len(r.snippets)+len(records))
	copy(next, r.snippets)
	for _, record := range records {
		next = append(next, r.newSnippet(record.Input().Normalize(), now))
	}
	if err := r.commit(ctx, "import", next); err != nil {
		return 0, err
	}

	r.l.Info("imported snippets", zap.Int("count", len(records)))
	metrics.ImportedSnippetsCounter.WithLabelValues().Add(float64(len(records)))
	return len(records), nil
}

// Restore replaces the whole collection with data as written to the backend,
// e.g. a backup listed by History.Versions. Ids and timestamps are kept.
func (r *Repo) Restore(ctx context.Context, data []byte) (int, error) {
	snippets, err := r.decodeCollection(data)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.commit(ctx, "restore", snippets); err != nil {
		return 0, err
	}
	r.l.Info("restored snippets", zap.Int("count", len(snippets)))
	return len(snippets), nil
}

// ImportFile reads key from files and imports it, the format follows the key extension
func (r *Repo) ImportFile(ctx context.Context, files Files, key string) (int, error) {
	data, err := files.Read(ctx, key)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read import file %q", key)
	}
	return r.Import(ctx, data, FormatForKey(key))
}

// Export serializes the whole collection
func (r *Repo) Export(format Format) ([]byte, error) {
	data, err := encodeSnippets(format, r.List())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode snippets")
	}
	return data, nil
}

// ExportFile writes the whole collection to key, the format follows the key extension
func (r *Repo) ExportFile(ctx context.Context, files Files, key string) error {
	data, err := r.Export(FormatForKey(key))
	if err != nil {
		return err
	}
	if err := files.Write(ctx, key, data); err != nil {
		return errors.Wrapf(err, "failed to write export file %q", key)
	}
	r.l.Info("exported snippets", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Close releases the backend
func (r *Repo) Close() error {
	return r.backend.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (r *Repo) load(ctx context.Context) error {
	data, err := r.backend.Read(ctx, r.key, []byte("[]"))
	if err != nil {
		return errors.Wrapf(err, "failed to read %q from backend", r.key)
	}
	snippets, err := r.decodeCollection(data)
	if err != nil {
		return errors.Wrapf(err, "failed to decode %q", r.key)
	}

	r.snippets = snippets
	metrics.SnippetsGauge.WithLabelValues().Set(float64(len(snippets)))
	r.l.Info("loaded snippets", zap.String("key", r.key), zap.Int("count", len(snippets)))
	return nil
}

// decodeCollection reads a stored collection, repairing missing or duplicate
// ids and empty folders
func (r *Repo) decodeCollection(data []byte) ([]snippet.Snippet, error) {
	snippets, err := decodeSnippets(FormatJSON, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	seen := make(map[string]struct{}, len(snippets))
	for i, s := range snippets {
		if _, ok := seen[s.ID]; ok || s.ID == "" {
			s.ID = r.newID()
			r.l.Warn("replaced missing or duplicate snippet id", zap.String("name", s.Name), zap.String("id", s.ID))
		}
		if s.Folder == "" {
			s.Folder = snippet.DefaultFolder
		}
		snippets[i] = s
		seen[s.ID] = struct{}{}
	}
	return snippets, nil
}

// create expects r.mu to be held
func (r *Repo) create(ctx context.Context, operation string, in snippet.Input) (snippet.Snippet, error) {
	in = in.Normalize()
	if err := snippet.Validate(in); err != nil {
		metrics.MutationsCounter.WithLabelValues(operation, "invalid").Inc()
		return snippet.Snippet{}, err
	}

	s := r.newSnippet(in, r.now())
	next := make([]snippet.Snippet, len(r.snippets), len(r.snippets)+1)
	copy(next, r.snippets)
	next = append(next, s)
	if err := r.commit(ctx, operation, next); err != nil {
		return snippet.Snippet{}, err
	}
	r.l.Debug("created snippet", zap.String("id", s.ID), zap.String("name", s.Name))
	return s.Clone(), nil
}

func (r *Repo) newSnippet(in snippet.Input, now time.Time) snippet.Snippet {
	return snippet.Snippet{
		ID:          r.newID(),
		Name:        in.Name,
		Description: in.Description,
		Body:        in.Body,
		Language:    in.Language,
		Tags:        in.Tags,
		Folder:      in.Folder,
		Created:     now,
		Modified:    now,
	}
}

// commit writes next to the backend and swaps it in. Expects r.mu to be held.
func (r *Repo) commit(ctx context.Context, operation string, next []snippet.Snippet) error {
	data, err := json.Marshal(next)
	if err != nil {
		metrics.MutationsCounter.WithLabelValues(operation, "error").Inc()
		return errors.Wrap(err, "failed to encode snippets")
	}
	if err := r.backend.Write(ctx, r.key, data); err != nil {
		r.l.Error("could not persist snippets", zap.String("operation", operation), zap.Error(err))
		metrics.PersistFailedCounter.WithLabelValues().Inc()
		metrics.MutationsCounter.WithLabelValues(operation, "error").Inc()
		return errors.Wrap(err, "failed to persist snippets")
	}
	r.snippets = next
	metrics.MutationsCounter.WithLabelValues(operation, "success").Inc()
	metrics.SnippetsGauge.WithLabelValues().Set(float64(len(next)))
	return nil
}

func (r *Repo) indexOf(id string) int {
	for i, s := range r.snippets {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (r *Repo) filter(fn func(snippet.Snippet) bool) []snippet.Snippet {
	ret := []snippet.Snippet{}
	for _, s := range r.snippets {
		if fn(s) {
			ret = append(ret, s.Clone())
		}
	}
	return ret
}

func validatePatch(p snippet.Patch) error {
	var ve snippet.ValidationError
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		ve = append(ve, snippet.FieldError{Field: "name", Tag: "required"})
	}
	if p.Folder != nil && *p.Folder == "" {
		ve = append(ve, snippet.FieldError{Field: "folder", Tag: "required"})
	}
	if len(ve) > 0 {
		return ve
	}
	return snippet.Validate(p)
}

func later(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
