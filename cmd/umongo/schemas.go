package main

import (
	"github.com/rs/zerolog"

	"github.com/albmarin/umongo/adapters/memory"
	"github.com/albmarin/umongo/core/registry"
	"github.com/albmarin/umongo/core/schema"
)

// loadInstance parses and resolves the template declarations under dir
// and registers them against a throwaway in-memory store. Commands that
// only inspect compiled schemas never touch the configured backend.
func loadInstance(dir string) (*registry.Instance, []*schema.Template, error) {
	decls, err := schema.ParseDir(dir)
	if err != nil {
		return nil, nil, err
	}
	tpls, err := schema.Resolve(decls)
	if err != nil {
		return nil, nil, err
	}

	inst := registry.New(memory.NewDatabase(), registry.Config{Logger: zerolog.Nop()})
	if err := inst.RegisterAll(tpls); err != nil {
		return nil, nil, err
	}
	return inst, tpls, nil
}
