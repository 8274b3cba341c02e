package main

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"difftest/internal/project"
	"difftest/internal/suite"
)

// settle collapses bursts of events, e.g. an editor's write-rename-chmod.
const settle = 200 * time.Millisecond

// watchSuite runs run once, then again after every relevant change under
// dir, until ctx is done.
func watchSuite(ctx context.Context, dir string, run func(context.Context)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := addTree(w, dir); err != nil {
		return err
	}

	run(ctx)
	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				// new subdirectories need their own watch
				_ = addTree(w, ev.Name)
			}
			if !relevant(ev.Name) {
				continue
			}
			log.Debugf("watch: %s %s", ev.Op, ev.Name)
			if timer == nil {
				timer = time.NewTimer(settle)
				trigger = timer.C
			} else {
				timer.Reset(settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watch: %v", err)
		case <-trigger:
			run(ctx)
		}
	}
}

func relevant(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, suite.FixtureExt) || base == project.ManifestName
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
