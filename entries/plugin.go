package entries

import (
	"context"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/advdv/bssr"
	"github.com/cockroachdb/errors"
)

// SetupSymbol is the name of the function a plugin entry must export.
const SetupSymbol = "Setup"

// PluginLoader loads entries from Go plugins. An entry is either the path of a plugin file or a
// directory, in which case the most recently modified ".so" file in it is loaded. A plugin that was
// opened once cannot be opened again with new code, so a rebuilt entry must be written to a new file.
type PluginLoader struct {
	open func(path string) (*plugin.Plugin, error)
}

// NewPluginLoader inits the plugin loader.
func NewPluginLoader() *PluginLoader {
	return &PluginLoader{open: plugin.Open}
}

// LoadEntry implements [bssr.EntryLoader].
func (l *PluginLoader) LoadEntry(_ context.Context, entry string) (bssr.SetupFunc, error) {
	path, err := resolvePluginPath(entry)
	if err != nil {
		return nil, err
	}

	p, err := l.open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open plugin %q", path)
	}

	sym, err := p.Lookup(SetupSymbol)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lookup %s in plugin %q", SetupSymbol, path)
	}

	return setupFromSymbol(path, sym)
}

func setupFromSymbol(path string, sym plugin.Symbol) (bssr.SetupFunc, error) {
	switch fn := sym.(type) {
	case func(*bssr.Stack) error:
		return fn, nil
	case *bssr.SetupFunc:
		if *fn == nil {
			return nil, errors.Newf("plugin %q exports a nil %s", path, SetupSymbol)
		}

		return *fn, nil
	case *func(*bssr.Stack) error:
		return *fn, nil
	default:
		return nil, errors.Newf("plugin %q exports %s with unsupported type %T", path, SetupSymbol, sym)
	}
}

func resolvePluginPath(entry string) (string, error) {
	fi, err := os.Stat(entry)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat entry %q", entry)
	}

	if !fi.IsDir() {
		return entry, nil
	}

	des, err := os.ReadDir(entry)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read entry directory %q", entry)
	}

	var (
		newest string
		mtime  int64
	)

	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".so") {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}

		if ns := info.ModTime().UnixNano(); newest == "" || ns > mtime {
			newest, mtime = filepath.Join(entry, de.Name()), ns
		}
	}

	if newest == "" {
		return "", errors.Newf("no plugin (.so) found in entry directory %q", entry)
	}

	return newest, nil
}

// Loader returns an entry loader that loads plugin files and directories through a [PluginLoader]
// and resolves everything else against the registry.
func Loader(reg *Registry) bssr.EntryLoader {
	plugins := NewPluginLoader()

	return bssr.EntryLoaderFunc(func(ctx context.Context, entry string) (bssr.SetupFunc, error) {
		if isPluginEntry(entry) {
			return plugins.LoadEntry(ctx, entry)
		}

		return reg.LoadEntry(ctx, entry)
	})
}

func isPluginEntry(entry string) bool {
	if strings.HasSuffix(entry, ".so") {
		return true
	}

	fi, err := os.Stat(entry)

	return err == nil && fi.IsDir()
}

var _ bssr.EntryLoader = (*PluginLoader)(nil)
