// A FileLocator resolves and opens named streams. The codecs in this package
// work identically whether their backing bytes live on the host filesystem
// or inside a mounted virtual disk; the locator is the seam between the two.

package vdisk

import (
	"os"
	"strings"

	"github.com/dsoprea/go-logging"
)

// FileLocator is an immutable capability for resolving named streams. It
// composes by path join and never owns the underlying filesystem object.
type FileLocator interface {
	// Exists reports whether `name` resolves to an existing stream.
	Exists(name string) (exists bool, err error)

	// Open opens the named stream. `flag` carries os.O_* semantics. A
	// missing file under a mode requiring existence fails with ErrNotFound;
	// a permission mismatch fails with ErrAccessDenied.
	Open(name string, flag int) (bs ByteStream, err error)

	// Relative returns a locator rooted at the joined path.
	Relative(relPath string) FileLocator
}

// JoinPath joins path components with platform-neutral `/` semantics.
// Consecutive separators collapse; a leading separator on the first
// component is preserved.
func JoinPath(parts ...string) string {
	segments := make([]string, 0, len(parts))

	for _, part := range parts {
		for _, segment := range strings.Split(part, "/") {
			if segment != "" {
				segments = append(segments, segment)
			}
		}
	}

	joined := strings.Join(segments, "/")

	if len(parts) > 0 && strings.HasPrefix(parts[0], "/") {
		joined = "/" + joined
	}

	return joined
}

// HostFileLocator resolves names under a directory on the host filesystem.
type HostFileLocator struct {
	root string
}

// NewHostFileLocator returns a locator rooted at the given host directory.
func NewHostFileLocator(root string) *HostFileLocator {
	return &HostFileLocator{
		root: root,
	}
}

func (hfl *HostFileLocator) resolve(name string) string {
	return JoinPath(hfl.root, name)
}

// Exists reports whether the named file exists under the root.
func (hfl *HostFileLocator) Exists(name string) (exists bool, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	_, err = os.Stat(hfl.resolve(name))
	if err != nil {
		if os.IsNotExist(err) == true {
			return false, nil
		}

		log.Panic(err)
	}

	return true, nil
}

// Open opens the named file under the root.
func (hfl *HostFileLocator) Open(name string, flag int) (bs ByteStream, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	f, err := os.OpenFile(hfl.resolve(name), flag, 0644)
	if err != nil {
		if os.IsNotExist(err) == true {
			log.Panic(ErrNotFound)
		} else if os.IsPermission(err) == true {
			log.Panic(ErrAccessDenied)
		}

		log.Panic(err)
	}

	return NewFileByteStream(f), nil
}

// Relative returns a locator rooted at the joined path.
func (hfl *HostFileLocator) Relative(relPath string) FileLocator {
	return NewHostFileLocator(JoinPath(hfl.root, relPath))
}

// DiscFilesystem is the narrow surface a mounted in-image filesystem must
// expose for locator use. Implementations are shared between locators and
// outlive every locator referencing them.
type DiscFilesystem interface {
	FileExists(path string) (exists bool, err error)
	OpenFile(path string, flag int) (bs ByteStream, err error)
}

// DiscFileLocator resolves names inside a mounted virtual-disk filesystem.
// The filesystem object is shared; the locator does not own it.
type DiscFileLocator struct {
	fs   DiscFilesystem
	base string
}

// NewDiscFileLocator returns a locator over `fs` rooted at `base`.
func NewDiscFileLocator(fs DiscFilesystem, base string) *DiscFileLocator {
	return &DiscFileLocator{
		fs:   fs,
		base: base,
	}
}

// Exists reports whether the named stream exists inside the image.
func (dfl *DiscFileLocator) Exists(name string) (exists bool, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	exists, err = dfl.fs.FileExists(JoinPath(dfl.base, name))
	log.PanicIf(err)

	return exists, nil
}

// Open opens the named stream inside the image.
func (dfl *DiscFileLocator) Open(name string, flag int) (bs ByteStream, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	bs, err = dfl.fs.OpenFile(JoinPath(dfl.base, name), flag)
	log.PanicIf(err)

	return bs, nil
}

// Relative returns a locator over the same filesystem at the joined path.
func (dfl *DiscFileLocator) Relative(relPath string) FileLocator {
	return NewDiscFileLocator(dfl.fs, JoinPath(dfl.base, relPath))
}

// MemoryFilesystem is a trivial DiscFilesystem over named in-memory
// streams. The navigable-filesystem layers plug in here the same way.
type MemoryFilesystem struct {
	files map[string][]byte
}

// NewMemoryFilesystem returns an empty in-memory filesystem.
func NewMemoryFilesystem() *MemoryFilesystem {
	return &MemoryFilesystem{
		files: make(map[string][]byte),
	}
}

// SetFile registers the contents for a path.
func (mfs *MemoryFilesystem) SetFile(path string, data []byte) {
	mfs.files[JoinPath(path)] = data
}

// FileExists reports whether the path was registered.
func (mfs *MemoryFilesystem) FileExists(path string) (exists bool, err error) {
	_, found := mfs.files[JoinPath(path)]
	return found, nil
}

// OpenFile opens a registered path.
func (mfs *MemoryFilesystem) OpenFile(path string, flag int) (bs ByteStream, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	data, found := mfs.files[JoinPath(path)]
	if found == false {
		log.Panic(ErrNotFound)
	}

	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		// The in-memory filesystem serves parser inputs; it has no
		// write-back path.
		log.Panic(ErrAccessDenied)
	}

	return NewReadOnlyMemoryByteStream(data), nil
}
