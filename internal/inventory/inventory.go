package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ligustah/milvue/internal/dicomfile"
	"github.com/ligustah/milvue/pkg/bundle"
)

// ServiceUIDRoot prefixes the instance keys of files produced by the
// inference service. Such files are never uploaded again.
const ServiceUIDRoot = "1.2.826.0.1.3680043.10.457"

// Study.Validate errors.
var (
	ErrMixedStudy        = errors.New("inventory: entry belongs to another study")
	ErrDuplicateInstance = errors.New("inventory: duplicate instance key")
	ErrEmptyStudy        = errors.New("inventory: study has no files")
)

// AttributeReader extracts the identifiers of one file.
type AttributeReader interface {
	ReadFile(path string) (dicomfile.Attributes, error)
}

// Entry is one file of a study.
type Entry struct {
	StudyKey    string
	InstanceKey string
	Path        string
}

// Study groups every file sharing a study key, in discovery order.
type Study struct {
	Key     string
	Entries []Entry
}

// Validate checks that the study can be sent as one upload: it has files,
// every file carries the study's key, and instance keys are unique.
func (s *Study) Validate() error {
	if len(s.Entries) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyStudy, s.Key)
	}
	keys := make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		if e.StudyKey != s.Key {
			return fmt.Errorf("%w: %s is in %s, not %s", ErrMixedStudy, e.Path, e.StudyKey, s.Key)
		}
		if keys[e.InstanceKey] {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateInstance, e.InstanceKey, s.Key)
		}
		keys[e.InstanceKey] = true
	}
	return nil
}

// Sources returns one upload part per entry, named after its instance key.
func (s *Study) Sources() []bundle.Source {
	sources := make([]bundle.Source, len(s.Entries))
	for i, e := range s.Entries {
		sources[i] = bundle.FileSource(bundle.PartName(e.InstanceKey), e.Path)
	}
	return sources
}

// Inventory maps study keys to studies. It is read-only once built.
type Inventory struct {
	studies map[string]*Study
	order   []string
}

// Len returns the number of studies.
func (inv *Inventory) Len() int {
	if inv == nil {
		return 0
	}
	return len(inv.order)
}

// Study returns the study with the given key.
func (inv *Inventory) Study(key string) (*Study, bool) {
	if inv == nil {
		return nil, false
	}
	s, ok := inv.studies[key]
	return s, ok
}

// Studies returns every study sorted by key.
func (inv *Inventory) Studies() []*Study {
	if inv == nil {
		return nil
	}
	out := make([]*Study, len(inv.order))
	for i, key := range inv.order {
		out[i] = inv.studies[key]
	}
	return out
}

// Files returns the total number of files across all studies.
func (inv *Inventory) Files() int {
	n := 0
	for _, s := range inv.Studies() {
		n += len(s.Entries)
	}
	return n
}

// Builder partitions files into studies.
type Builder struct {
	reader AttributeReader
	logger *zap.Logger
}

// NewBuilder creates a Builder. A nil logger discards warnings.
func NewBuilder(reader AttributeReader, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{reader: reader, logger: logger}
}

// Build reads every path and groups the usable ones by study key. Files
// that cannot be read, lack an identifier, were produced by the service,
// or repeat an instance key already seen in their study are skipped with
// a warning. Build returns nil when no file is usable.
func (b *Builder) Build(paths []string) *Inventory {
	inv := &Inventory{studies: make(map[string]*Study)}
	seen := make(map[string]map[string]string)

	for _, p := range paths {
		attrs, err := b.reader.ReadFile(p)
		if err != nil {
			b.logger.Warn("skipping file", zap.String("path", p), zap.Error(err))
			continue
		}

		if strings.HasPrefix(attrs.SOPInstanceUID, ServiceUIDRoot) {
			b.logger.Warn("skipping file produced by the service",
				zap.String("path", p),
				zap.String("instance", attrs.SOPInstanceUID),
			)
			continue
		}

		study, ok := inv.studies[attrs.StudyInstanceUID]
		if !ok {
			study = &Study{Key: attrs.StudyInstanceUID}
			inv.studies[study.Key] = study
			seen[study.Key] = make(map[string]string)
		}

		if first, dup := seen[study.Key][attrs.SOPInstanceUID]; dup {
			b.logger.Warn("skipping duplicate instance",
				zap.String("path", p),
				zap.String("study", study.Key),
				zap.String("instance", attrs.SOPInstanceUID),
				zap.String("kept", first),
			)
			continue
		}
		seen[study.Key][attrs.SOPInstanceUID] = p

		study.Entries = append(study.Entries, Entry{
			StudyKey:    attrs.StudyInstanceUID,
			InstanceKey: attrs.SOPInstanceUID,
			Path:        p,
		})
	}

	if len(inv.studies) == 0 {
		return nil
	}
	for key := range inv.studies {
		inv.order = append(inv.order, key)
	}
	sort.Strings(inv.order)

	b.logger.Info("inventory built",
		zap.Int("studies", inv.Len()),
		zap.Int("files", inv.Files()),
		zap.Int("skipped", len(paths)-inv.Files()),
	)
	return inv
}
