// Package hclwf is the HCL implementation of the workflow loader. It
// parses `rule`, `env`, and `workflow` blocks from .hcl files and
// translates them into the format-agnostic config model.
package hclwf

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"pipewright/internal/config"
	"pipewright/internal/ctxlog"
	"pipewright/internal/fsutil"
)

// Loader is the HCL-specific implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads workflow definitions from the given paths. A path may be a
// single .hcl file or a directory searched recursively for .hcl files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := &config.Model{
		Rules: make(map[string]*config.Rule),
		Envs:  make(map[string]*config.Env),
	}

	files, err := l.findWorkflowFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered workflow files.", "count", len(files))
	if len(files) == 0 {
		return nil, fmt.Errorf("no workflow files (.hcl) found in %v", paths)
	}

	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse workflow file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode workflow file %s: %w", file, diags)
		}

		for _, r := range root.Rules {
			def, err := l.translateRule(r)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			if _, exists := model.Rules[def.Name]; exists {
				return nil, fmt.Errorf("%s: duplicate rule %q", file, def.Name)
			}
			model.Rules[def.Name] = def
		}
		for _, e := range root.Envs {
			if _, exists := model.Envs[e.Name]; exists {
				return nil, fmt.Errorf("%s: duplicate env %q", file, e.Name)
			}
			model.Envs[e.Name] = &config.Env{Name: e.Name, File: e.File}
		}
		for _, w := range root.Workflows {
			if model.Defaults != nil {
				return nil, fmt.Errorf("%s: more than one workflow block", file)
			}
			model.Defaults = &config.Defaults{
				Targets: w.Targets,
				Title:   w.Title,
				Author:  w.Author,
			}
		}
	}

	if err := validate(model); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.",
		"rules", len(model.Rules), "envs", len(model.Envs), "has_defaults", model.Defaults != nil)
	return model, nil
}

// findWorkflowFiles resolves each path to a flat list of .hcl files.
func (l *Loader) findWorkflowFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("workflow path %s: %w", path, err)
		}

		var found []string
		if info.IsDir() {
			found, err = fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, fmt.Errorf("searching %s: %w", path, err)
			}
		} else {
			found = []string{path}
		}

		for _, f := range found {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			all = append(all, f)
		}
	}
	return all, nil
}
