package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/paths"
	"github.com/google/uuid"
)

// Directory inside each namespace holding slot contents. Slots are symbolic
// links into it.
const dataDir = ".data"

// A directory on the host filesystem.
type Directory struct {
	Path string
}

// Summary of one slot, as reported by [Store.Slots].
type SlotInfo struct {
	Key      string    // Slot key.
	Path     string    // Directory currently holding the slot contents.
	Bytes    int64     // Total size of the regular files in the slot.
	Files    int       // Number of regular files in the slot.
	Modified time.Time // Time the slot was last written.
}

// Host-side storage for cache slots.
//
// Slots live at <root>/<namespace>/<key>. Each slot is a symbolic link to a
// data directory under <root>/<namespace>/.data, which lets [Store.WriteSlot]
// replace the whole tree with a single rename. Writers to the same slot are
// serialised within a process; separate processes sharing a namespace are
// not coordinated.
type Store struct {
	root string

	mu      sync.Mutex
	locks   map[string]*slotLock
	readers map[string]int  // Open sources per data directory.
	retired map[string]bool // Replaced data directories waiting for their last reader.
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

// Creates a store rooted at the given directory, creating it if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fault.Wrapf(ErrConfig, "cache root is empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fault.Wrap(ErrStorage, err)
	}

	if err := os.MkdirAll(abs, paths.DefaultDirMode); err != nil {
		return nil, fault.Wrap(ErrStorage, err)
	}

	return &Store{
		root:    abs,
		locks:   make(map[string]*slotLock),
		readers: make(map[string]int),
		retired: make(map[string]bool),
	}, nil
}

// Returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// Creates an empty slot if none exists. Never touches existing contents.
//
// A plain directory found at the slot location, as left by an older layout
// or created by hand, is adopted: it is moved under the data directory and
// linked in place.
func (s *Store) EnsureSlot(namespace, key string) error {
	unlock, err := s.lockSlot(namespace, key)
	if err != nil {
		return err
	}
	defer unlock()

	return s.ensureSlot(namespace, key)
}

func (s *Store) ensureSlot(namespace, key string) error {
	link := s.slotPath(namespace, key)

	info, err := os.Lstat(link)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		if _, err := os.Stat(link); err == nil {
			return nil
		}
		// Dangling link: the data directory was removed behind our back.
	case err == nil && info.IsDir():
		return s.adopt(namespace, key)
	case err == nil:
		return fault.Wrapf(ErrStorage, "cache slot %s is not a directory", link)
	case !errors.Is(err, fs.ErrNotExist):
		return fault.Wrap(ErrStorage, err)
	}

	staging, err := s.stage(namespace, key)
	if err != nil {
		return err
	}
	if err := s.swap(namespace, key, staging); err != nil {
		os.RemoveAll(staging.Path)
		return err
	}
	return nil
}

// Moves a plain slot directory under the data directory and links it.
func (s *Store) adopt(namespace, key string) error {
	if err := os.MkdirAll(s.dataPath(namespace), paths.DefaultDirMode); err != nil {
		return fault.Wrap(ErrStorage, err)
	}

	data := filepath.Join(s.dataPath(namespace), dataName(key))
	if err := os.Rename(s.slotPath(namespace, key), data); err != nil {
		return fault.Wrap(ErrStorage, err)
	}
	return s.swap(namespace, key, Directory{Path: data})
}

// Returns the directory holding the current contents of a slot.
//
// A slot that was never initialised is created empty first, so a cold
// cache is a valid, empty source. The directory stays on disk until the
// returned release function is called, even if [Store.WriteSlot] replaces
// the slot in the meantime. Release may be called more than once.
func (s *Store) SlotAsSource(namespace, key string) (Directory, func(), error) {
	unlock, err := s.lockSlot(namespace, key)
	if err != nil {
		return Directory{}, nil, err
	}
	defer unlock()

	if err := s.ensureSlot(namespace, key); err != nil {
		return Directory{}, nil, err
	}

	resolved, err := s.target(namespace, key)
	if err != nil {
		return Directory{}, nil, fault.Wrap(ErrStorage, err)
	}

	s.mu.Lock()
	s.readers[resolved]++
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { s.release(resolved) })
	}
	return Directory{Path: resolved}, release, nil
}

// Drops one reader of a data directory, removing it if it was replaced
// while in use and this was the last reader.
func (s *Store) release(dir string) {
	s.mu.Lock()
	s.readers[dir]--
	if s.readers[dir] > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.readers, dir)
	collect := s.retired[dir]
	delete(s.retired, dir)
	s.mu.Unlock()

	if collect {
		os.RemoveAll(dir)
	}
}

// Allocates an empty staging directory for a new version of a slot.
//
// The directory is on the same filesystem as the slot. Pass it to
// [Store.WriteSlot] once populated, or to [Store.Discard] to abandon it.
func (s *Store) Stage(namespace, key string) (Directory, error) {
	if err := checkName(namespace); err != nil {
		return Directory{}, err
	}
	if err := checkName(key); err != nil {
		return Directory{}, err
	}
	return s.stage(namespace, key)
}

func (s *Store) stage(namespace, key string) (Directory, error) {
	data := s.dataPath(namespace)
	if err := os.MkdirAll(data, paths.DefaultDirMode); err != nil {
		return Directory{}, fault.Wrap(ErrStorage, err)
	}

	dir := filepath.Join(data, dataName(key))
	if err := os.Mkdir(dir, paths.DefaultDirMode); err != nil {
		return Directory{}, fault.Wrap(ErrStorage, err)
	}
	return Directory{Path: dir}, nil
}

// Removes a staging directory obtained from [Store.Stage].
func (s *Store) Discard(dir Directory) error {
	if !s.isData(dir.Path) {
		return fault.Wrapf(ErrStorage, "%s is not a staging directory", dir.Path)
	}
	if err := os.RemoveAll(dir.Path); err != nil {
		return fault.Wrap(ErrStorage, err)
	}
	return nil
}

// Atomically replaces the contents of a slot with a staged directory.
//
// The slot link is repointed with a rename, so a reader resolving the slot
// sees either the previous tree or the new one, never a mix. The previous
// data directory is removed afterwards, or once its last reader obtained
// from [Store.SlotAsSource] is released. The staged directory must have been
// obtained from [Store.Stage] for the same slot.
func (s *Store) WriteSlot(namespace, key string, dir Directory) error {
	unlock, err := s.lockSlot(namespace, key)
	if err != nil {
		return err
	}
	defer unlock()

	if filepath.Dir(dir.Path) != s.dataPath(namespace) || !strings.HasPrefix(filepath.Base(dir.Path), key+".") {
		return fault.Wrapf(ErrStorage, "%s is not a staging directory for slot %s", dir.Path, key)
	}

	return s.swap(namespace, key, dir)
}

// Points a slot at dir and removes the data directory it pointed at before.
// A previous directory with open readers is retired instead and removed by
// the last release.
func (s *Store) swap(namespace, key string, dir Directory) error {
	link := s.slotPath(namespace, key)
	old, _ := s.target(namespace, key)

	target, err := filepath.Rel(filepath.Dir(link), dir.Path)
	if err != nil {
		return fault.Wrap(ErrStorage, err)
	}

	tmp := filepath.Join(filepath.Dir(link), ".link-"+uuid.NewString())
	if err := os.Symlink(target, tmp); err != nil {
		return fault.Wrap(ErrStorage, err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fault.Wrap(ErrStorage, err)
	}

	if old != "" && old != dir.Path && s.isData(old) && !s.retire(old) {
		if err := os.RemoveAll(old); err != nil {
			return fault.Wrap(ErrStorage, err)
		}
	}

	return nil
}

// Marks dir for removal by its last reader. Reports false when dir has no
// readers and can be removed now.
func (s *Store) retire(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readers[dir] == 0 {
		return false
	}
	s.retired[dir] = true
	return true
}

// Returns the namespaces present in the store, sorted.
func (s *Store) Namespaces() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fault.Wrap(ErrStorage, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Lists the slots of a namespace, sorted by key.
//
// A namespace that does not exist has no slots.
func (s *Store) Slots(namespace string) ([]SlotInfo, error) {
	if err := checkName(namespace); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, namespace))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fault.Wrap(ErrStorage, err)
	}

	var slots []SlotInfo
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || e.Type()&fs.ModeSymlink == 0 {
			continue
		}

		link := s.slotPath(namespace, e.Name())
		resolved, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}

		info, err := os.Lstat(link)
		if err != nil {
			return nil, fault.Wrap(ErrStorage, err)
		}

		bytes, files, err := dirSize(resolved)
		if err != nil {
			return nil, fault.Wrap(ErrStorage, err)
		}

		slots = append(slots, SlotInfo{
			Key:      e.Name(),
			Path:     resolved,
			Bytes:    bytes,
			Files:    files,
			Modified: info.ModTime(),
		})
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Key < slots[j].Key })
	return slots, nil
}

// Acquires the in-process lock of a slot. The returned function releases it.
func (s *Store) lockSlot(namespace, key string) (func(), error) {
	if err := checkName(namespace); err != nil {
		return nil, err
	}
	if err := checkName(key); err != nil {
		return nil, err
	}

	id := namespace + "/" + key

	s.mu.Lock()
	lock := s.locks[id]
	if lock == nil {
		lock = &slotLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}, nil
}

// Returns the directory a slot link points at, without resolving further
// links.
func (s *Store) target(namespace, key string) (string, error) {
	link := s.slotPath(namespace, key)
	dest, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(filepath.Dir(link), dest)
	}
	return dest, nil
}

func (s *Store) slotPath(namespace, key string) string {
	return filepath.Join(s.root, namespace, key)
}

func (s *Store) dataPath(namespace string) string {
	return filepath.Join(s.root, namespace, dataDir)
}

// Whether path is a directory directly under some namespace's data
// directory.
func (s *Store) isData(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return len(parts) == 3 && parts[1] == dataDir && parts[0] != ".." && parts[2] != ""
}

// Returns a fresh data directory name for a slot.
func dataName(key string) string {
	return key + "." + uuid.NewString()
}

// Rejects namespace and key values that are not a single plain path element.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fault.Wrapf(ErrConfig, "invalid cache name %q", name)
	}
	return nil
}

// Returns the total size and count of regular files under dir.
func dirSize(dir string) (int64, int, error) {
	var bytes int64
	var files int

	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		bytes += info.Size()
		files++
		return nil
	})
	return bytes, files, err
}
