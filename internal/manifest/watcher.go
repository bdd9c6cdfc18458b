package manifest

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/vinayprograms/gyre/internal/logging"
)

// Watcher prunes files from the manifest when something outside the loop
// modifies them on disk. A file changed behind the agent's back is stale in
// its context, so it must be re-read before the next write.
type Watcher struct {
	manifest  *Manifest
	workspace string
	fw        *fsnotify.Watcher
	logger    *logging.Logger
	done      chan struct{}
}

// NewWatcher watches the workspace tree and prunes tracked files on change.
// Every directory under the workspace is registered, since fsnotify watches
// are not recursive; directories created later are picked up from their
// create events.
func NewWatcher(m *Manifest, workspace string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		switch d.Name() {
		case ".git", ".gyre", "node_modules":
			if path != workspace {
				return filepath.SkipDir
			}
		}
		return fw.Add(path)
	})
	if err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		manifest:  m,
		workspace: workspace,
		fw:        fw,
		logger:    logging.New().WithComponent("watcher"),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fw.Add(event.Name); err != nil {
						w.logger.Warn("watch add failed", map[string]interface{}{"path": event.Name, "error": err.Error()})
					}
					continue
				}
			}
			rel, err := filepath.Rel(w.workspace, event.Name)
			if err != nil {
				continue
			}
			// Only files with a verified read can go stale.
			for _, p := range w.manifest.ReadFiles() {
				if p == rel {
					w.manifest.PruneFromContext(rel)
					w.logger.Pruned(rel)
					break
				}
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
