package app

import (
	"net/url"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// FileLoader reads the file at a URL. Loaders are registered per URL scheme,
// so certificates can live somewhere other than the local disk.
type FileLoader func(u *url.URL) ([]byte, error)

var loaders = struct {
	sync.RWMutex
	byScheme map[string]FileLoader
}{
	byScheme: map[string]FileLoader{
		"":     loadLocalFile,
		"file": loadLocalFile,
	},
}

// RegisterFileLoader registers the loader for a URL scheme. It panics if the
// scheme already has one.
func RegisterFileLoader(scheme string, loader FileLoader) {
	loaders.Lock()
	defer loaders.Unlock()

	if _, ok := loaders.byScheme[scheme]; ok {
		panic("app: file loader already registered for scheme " + scheme)
	}
	loaders.byScheme[scheme] = loader
}

// LoadFile reads the file at fileURL with the loader registered for its
// scheme. Plain paths are read from the local filesystem.
func LoadFile(fileURL string) ([]byte, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid file url %s", fileURL)
	}

	loaders.RLock()
	loader, ok := loaders.byScheme[u.Scheme]
	loaders.RUnlock()
	if !ok {
		return nil, errors.Errorf("no file loader for scheme %q", u.Scheme)
	}
	return loader(u)
}

func loadLocalFile(u *url.URL) ([]byte, error) {
	path := u.Host + u.Path
	if len(path) == 0 {
		path = u.Opaque
	}

	b, err := os.ReadFile(path)
	return b, errors.Wrapf(err, "failed to read %s", path)
}
