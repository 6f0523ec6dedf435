// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads Config from its optional HJSON file whenever that file
// changes on disk, validates it, and hands each valid result to its onLoad
// callback. What happens to the reloaded values is up to that callback.
type Watcher struct {
	path    string
	loader  *Loader
	fsw     *fsnotify.Watcher
	onLoad  func(*Config)
	closeCh chan struct{}
}

// NewWatcher watches path (a non-empty HJSON config file) and invokes
// onLoad with each successfully reloaded Config. Environment variables are
// re-applied on every reload, so they still take precedence over the file.
func NewWatcher(path string, onLoad func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{path: path, loader: NewLoader(), fsw: fsw, onLoad: onLoad, closeCh: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := w.loader.Load(w.path)
			if err != nil {
				log.Printf("config: reload failed: %v", err)
				continue
			}
			if err := NewValidator().Validate(cfg); err != nil {
				log.Printf("config: reloaded config invalid, ignoring: %v", err)
				continue
			}
			w.onLoad(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.closeCh:
	default:
		close(w.closeCh)
	}
	return w.fsw.Close()
}
