// Package app wires the document runtime into a running service:
// loading declared templates from disk, binding them to a database,
// and serving generic document CRUD over the bound collections.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/albmarin/umongo/core/registry"
	"github.com/albmarin/umongo/core/schema"
)

// InstanceFactory builds a fresh, empty registry instance bound to the
// backing database. Every reload registers the re-parsed templates
// into a new instance from this factory, so a half-failed reload never
// leaves a partially registered instance serving traffic.
type InstanceFactory func() *registry.Instance

// SchemaService owns the current bound instance and reloads it when
// the schema directory changes.
type SchemaService struct {
	dir     string
	factory InstanceFactory
	log     zerolog.Logger

	mu      sync.RWMutex
	current *registry.Instance

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewSchemaService loads the schema directory once and returns the
// service. A broken schema directory fails construction; later reload
// failures only log and keep the previous instance.
func NewSchemaService(ctx context.Context, dir string, factory InstanceFactory, logger zerolog.Logger) (*SchemaService, error) {
	s := &SchemaService{
		dir:     dir,
		factory: factory,
		log:     logger.With().Str("component", "schemas").Logger(),
		stopCh:  make(chan struct{}),
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Instance returns the currently bound instance.
func (s *SchemaService) Instance() *registry.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload parses the schema directory, registers every template into a
// fresh instance in parent-before-child order, ensures the planned
// indexes, and swaps the instance in. The old instance keeps serving
// when any step fails.
func (s *SchemaService) Reload(ctx context.Context) error {
	decls, err := schema.ParseDir(s.dir)
	if err != nil {
		return fmt.Errorf("parse schema dir: %w", err)
	}
	if len(decls) == 0 {
		return fmt.Errorf("schema dir %s declares no templates", s.dir)
	}

	tpls, err := schema.Resolve(decls)
	if err != nil {
		return err
	}

	inst := s.factory()
	if err := inst.RegisterAll(tpls); err != nil {
		return err
	}
	if err := inst.EnsureAllIndexes(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = inst
	s.mu.Unlock()

	s.log.Info().Int("templates", len(tpls)).Str("dir", s.dir).Msg("schemas loaded")
	return nil
}

// Watch starts watching the schema directory; changes to any template
// file trigger a reload.
func (s *SchemaService) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.watcher = watcher

	go s.watchLoop()

	s.log.Info().Str("dir", s.dir).Msg("watching schema directory")
	return nil
}

// Stop stops the directory watcher.
func (s *SchemaService) Stop() {
	close(s.stopCh)
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *SchemaService) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !isTemplateFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.log.Debug().Str("event", event.Op.String()).Str("file", event.Name).Msg("schema file changed")
			if err := s.Reload(context.Background()); err != nil {
				s.log.Error().Err(err).Msg("schema reload failed, keeping previous instance")
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Error().Err(err).Msg("schema watcher error")

		case <-s.stopCh:
			return
		}
	}
}

func isTemplateFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
