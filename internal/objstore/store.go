// Package objstore implements the object store: reading raw objects
// from the loose directory or packed archives, writing loose objects,
// and chaining to alternate object directories.
package objstore

import (
	"errors"
	"fmt"

	"github.com/nicolagi/gitcore/internal/objid"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned (wrapped) when an id is not present in any
// loose file, pack, or alternate searched.
var ErrNotFound = errors.New("object not found")

// RawObject is what ReadRaw returns: the type tag recorded alongside
// the payload (one of "blob", "tree", "commit", "tag") and the
// serialized payload bytes, exclusive of the tag/length/NUL
// header used only to compute the identity.
type RawObject struct {
	Kind string
	Data []byte
}

// Backend is the minimal capability a store needs from a place objects
// might live: the loose directory, a packfile, or a remote mirror such
// as an S3 bucket (see S3Backend). Writing is not part of Backend; a
// backend that accepts new objects also implements Writer.
type Backend interface {
	Get(id objid.ID) (RawObject, error)
	Has(id objid.ID) (bool, error)
	// ForEach invokes fn for every id the backend can enumerate. Packs
	// enumerate in index order; disk backends in directory order.
	ForEach(fn func(objid.ID) error) error
}

// Writer is implemented by backends that accept new objects: DiskBackend
// and S3Backend. Store writes new objects only to its loose DiskBackend.
type Writer interface {
	Put(kind string, data []byte) (objid.ID, error)
}

// ErrReadOnly reports a write to a backend that does not accept writes.
// No backend in this package returns it.
var ErrReadOnly = errors.New("backend is read-only")

// Strictness controls whether ReadRaw verifies the digest of what it
// read against the id requested.
type Strictness int

const (
	// Lenient skips the post-read digest check.
	Lenient Strictness = iota
	// Strict recomputes the digest of every object read and fails on
	// mismatch. This is the default.
	Strict
)

// Store is the object store proper: a loose-object directory, zero or
// more parsed packs, and a chain of alternate stores consulted when a
// lookup misses locally. Alternates are loaded from a manifest file
// and recursively expanded; cycles are broken by directory fingerprint.
type Store struct {
	loose      *DiskBackend
	packs      []*Pack
	remotes    []Backend
	alternates []*Store
	strictness Strictness

	// fingerprint identifies this store's loose directory for alternate
	// cycle detection; see loadAlternates.
	fingerprint string
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithStrictness overrides the default Strict read mode.
func WithStrictness(s Strictness) Option {
	return func(store *Store) { store.strictness = s }
}

// WithRemote adds a read-only backend (e.g., an S3Backend) consulted
// after loose files and packs but before alternates.
func WithRemote(b Backend) Option {
	return func(store *Store) { store.remotes = append(store.remotes, b) }
}

// Open creates a Store rooted at objdir (the conventional ".git/objects"
// equivalent), loading any packs found under objdir/pack and any
// alternates listed in objdir/info/alternates.
func Open(objdir string, opts ...Option) (*Store, error) {
	return open(objdir, map[string]bool{}, opts...)
}

func open(objdir string, seen map[string]bool, opts ...Option) (*Store, error) {
	s := &Store{
		loose:       NewDiskBackend(objdir),
		strictness:  Strict,
		fingerprint: fingerprintFor(objdir),
	}
	for _, opt := range opts {
		opt(s)
	}
	seen[s.fingerprint] = true
	packs, err := loadPacks(objdir)
	if err != nil {
		return nil, errorf("Open", "loading packs under %q: %v", objdir, err)
	}
	s.packs = packs
	if err := s.loadAlternates(objdir, seen); err != nil {
		return nil, errorf("Open", "loading alternates for %q: %v", objdir, err)
	}
	return s, nil
}

// ReadRaw searches, in order, the loose directory, every pack, every
// configured remote backend, then every alternate (recursively). It
// returns ErrNotFound (wrapped) if nothing has the object.
func (s *Store) ReadRaw(id objid.ID) (RawObject, error) {
	obj, err := s.loose.Get(id)
	if err == nil {
		return s.verify(id, obj)
	}
	if !errors.Is(err, ErrNotFound) {
		return RawObject{}, err
	}
	for _, p := range s.packs {
		obj, err = p.Get(id)
		if err == nil {
			return s.verify(id, obj)
		}
		if !errors.Is(err, ErrNotFound) {
			return RawObject{}, err
		}
	}
	for _, r := range s.remotes {
		obj, err = r.Get(id)
		if err == nil {
			return s.verify(id, obj)
		}
		if !errors.Is(err, ErrNotFound) {
			return RawObject{}, err
		}
	}
	for _, alt := range s.alternates {
		obj, err = alt.ReadRaw(id)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return RawObject{}, err
		}
	}
	return RawObject{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

func (s *Store) verify(id objid.ID, obj RawObject) (RawObject, error) {
	if s.strictness == Lenient {
		return obj, nil
	}
	if got := objid.Hash(obj.Kind, obj.Data); got != id {
		return RawObject{}, fmt.Errorf("%s: %w: digest recomputes to %s", id, ErrCorrupt, got)
	}
	return obj, nil
}

// Has reports whether id is present anywhere this store searches,
// without validating its digest.
func (s *Store) Has(id objid.ID) (bool, error) {
	if ok, err := s.loose.Has(id); ok || err != nil {
		return ok, err
	}
	for _, p := range s.packs {
		if ok, err := p.Has(id); ok || err != nil {
			return ok, err
		}
	}
	for _, r := range s.remotes {
		if ok, err := r.Has(id); ok || err != nil {
			return ok, err
		}
	}
	for _, alt := range s.alternates {
		if ok, err := alt.Has(id); ok || err != nil {
			return ok, err
		}
	}
	return false, nil
}

// WriteRaw computes the identity of kind+data and writes it to the
// loose directory, unless an object with that id already exists
// anywhere reachable from this store, in which case it is a no-op.
func (s *Store) WriteRaw(kind string, data []byte) (objid.ID, error) {
	id := objid.Hash(kind, data)
	if ok, err := s.Has(id); err != nil {
		return objid.Nil, err
	} else if ok {
		return id, nil
	}
	if _, err := s.loose.Put(kind, data); err != nil {
		return objid.Nil, err
	}
	return id, nil
}

// EnumerateLoose yields every id stored as a loose file, across every
// two-letter subdirectory of the loose directory.
func (s *Store) EnumerateLoose(fn func(objid.ID) error) error {
	return s.loose.ForEach(fn)
}

// Packs exposes the parsed packs for iteration (e.g., by the integrity
// checker or the negotiation pack writer).
func (s *Store) Packs() []*Pack { return s.packs }

func (s *Store) loadAlternates(objdir string, seen map[string]bool) error {
	paths, err := readAlternatesManifest(objdir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fp := fingerprintFor(p)
		if seen[fp] {
			log.WithField("path", p).Debug("Skipping alternate already visited")
			continue
		}
		seen[fp] = true
		alt, err := open(p, seen, WithStrictness(s.strictness))
		if err != nil {
			return err
		}
		s.alternates = append(s.alternates, alt)
	}
	return nil
}
