package iosource

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// NewFileHandler is invoked whenever DirWatchSource notices a new trace
// file dropped into its watched directory, so the owning Registry can
// open and register it.
type NewFileHandler func(path string)

// DirWatchSource is an IOSource that picks up new pcap files dropped
// into a watched directory, so the monitor can follow rotated or
// rolled trace files without a restart.
type DirWatchSource struct {
	dir     string
	watcher *fsnotify.Watcher
	onNew   NewFileHandler
	errMsg  string
}

// NewDirWatchSource starts watching dir for new *.pcap/*.pcapng files.
func NewDirWatchSource(dir string, onNew NewFileHandler) (*DirWatchSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &DirWatchSource{dir: dir, watcher: w, onNew: onNew}, nil
}

func (s *DirWatchSource) Tag() string { return "DirWatchSource(" + s.dir + ")" }

// Process drains any pending fsnotify events without blocking, opening
// a new trace source for every recognized create event.
func (s *DirWatchSource) Process(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if !isTraceFile(ev.Name) {
				continue
			}
			s.onNew(ev.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.errMsg = err.Error()
		default:
			return nil
		}
	}
}

func isTraceFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pcap" || ext == ".pcapng"
}

// IsOpen reports whether the underlying fsnotify watcher is still live.
func (s *DirWatchSource) IsOpen() bool { return s.watcher != nil }

// ErrorMsg returns the last fsnotify error observed, if any.
func (s *DirWatchSource) ErrorMsg() string { return s.errMsg }

func (s *DirWatchSource) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
