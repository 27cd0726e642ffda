package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
)

type scope int

const (
	scopePrivate scope = iota
	scopePublic
)

type cacheKey struct {
	scope scope
	name  string
}

// ShaderLibrary loads shader text by slash separated name. Private lookups only see
// the engine root, public lookups fall back to the content roots.
type ShaderLibrary struct {
	engineRoot   string
	contentRoots []string
	loader       Loader

	mutex sync.RWMutex
	cache map[cacheKey]string

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan string
	wg       sync.WaitGroup
}

func NewShaderLibrary(cfg core.ShaderConfig) *ShaderLibrary {
	return &ShaderLibrary{
		engineRoot:   cfg.EngineRoot,
		contentRoots: cfg.ContentRoots,
		loader:       &loaders.ShaderLoader{},
		cache:        make(map[cacheKey]string),
	}
}

func (l *ShaderLibrary) PrivateText(name string) (string, error) {
	return l.text(scopePrivate, name)
}

func (l *ShaderLibrary) PublicText(name string) (string, error) {
	return l.text(scopePublic, name)
}

func (l *ShaderLibrary) text(s scope, name string) (string, error) {
	key := cacheKey{scope: s, name: name}
	l.mutex.RLock()
	text, exists := l.cache[key]
	l.mutex.RUnlock()
	if exists {
		return text, nil
	}

	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %s", core.ErrMissingShader, name)
	}

	roots := []string{l.engineRoot}
	if s == scopePublic {
		roots = append(roots, l.contentRoots...)
	}
	for _, root := range roots {
		text, err := l.loader.Load(filepath.Join(root, filepath.FromSlash(name)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		l.mutex.Lock()
		l.cache[key] = text
		l.mutex.Unlock()
		return text, nil
	}
	return "", fmt.Errorf("%w: %s", core.ErrMissingShader, name)
}

// Watch starts watching every root recursively. Changed files are dropped from the
// cache and their names are sent on Changes.
func (l *ShaderLibrary) Watch() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.isClosed {
		return errors.New("shader library already closed")
	}
	if l.fsnotify != nil {
		return nil
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.fsnotify = fsWatch
	l.done = make(chan struct{})
	l.changes = make(chan string, 64)

	for _, root := range l.roots() {
		if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := l.watchRecursive(root); err != nil {
			fsWatch.Close()
			l.fsnotify = nil
			return err
		}
	}

	l.wg.Add(1)
	go l.start()
	core.LogDebug("watching shader roots %v", l.roots())
	return nil
}

// Changes delivers the names of modified shader files. It is nil before Watch.
func (l *ShaderLibrary) Changes() <-chan string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.changes
}

func (l *ShaderLibrary) Close() error {
	l.mutex.Lock()
	if l.isClosed {
		l.mutex.Unlock()
		return nil
	}
	l.isClosed = true
	watching := l.fsnotify != nil
	l.mutex.Unlock()

	if watching {
		close(l.done)
		l.wg.Wait()
	}
	return nil
}

func (l *ShaderLibrary) roots() []string {
	return append([]string{l.engineRoot}, l.contentRoots...)
}

func (l *ShaderLibrary) start() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.fsnotify.Events:
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := l.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				l.handleFileEvent(e.Name)
			}

		case err := <-l.fsnotify.Errors:
			if err != nil {
				core.LogError("shader watcher: %s", err)
			}

		case <-l.done:
			l.fsnotify.Close()
			close(l.changes)
			return
		}
	}
}

func (l *ShaderLibrary) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return l.fsnotify.Add(walkPath)
		}
		return nil
	})
}

func (l *ShaderLibrary) handleFileEvent(path string) {
	name, ok := l.nameOf(path)
	if !ok {
		return
	}

	l.mutex.Lock()
	delete(l.cache, cacheKey{scope: scopePrivate, name: name})
	delete(l.cache, cacheKey{scope: scopePublic, name: name})
	l.mutex.Unlock()

	select {
	case l.changes <- name:
	default:
		core.LogDebug("shader change queue full, dropping %s", name)
	}
}

// nameOf maps a file path back to the name it is looked up by.
func (l *ShaderLibrary) nameOf(path string) (string, bool) {
	for _, root := range l.roots() {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}
