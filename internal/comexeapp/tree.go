// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"fmt"
	"io"
	"strings"

	"github.com/pascalcombier/comexe/internal/instance"
	"github.com/pascalcombier/comexe/internal/logging"
)

// orphansRoot is a synthetic parent used to reparent instances whose
// actual parent is no longer present in the registry. It is never added
// to Registry; it only serves as a join point for printThreadHierarchy.
var orphansRoot = &instance.Instance{ModuleName: "Orphans"}

// cleanupOrphans reparents every live instance whose direct parent is no
// longer present in the registry onto orphansRoot. This is a
// direct-parent check only, not a transitive walk: an instance whose
// parent was itself just reparented onto orphansRoot is left alone on
// this pass (its parent is still present in the registry, so it is not
// "missing").
func cleanupOrphans(app *Application) (orphanCount int) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.Registry.Range(func(_ uint64, object any) {
		inst := object.(*instance.Instance)
		if inst.Parent == nil || inst.Parent == orphansRoot || inst.Parent == app.root {
			return
		}
		if containsInstanceLocked(app, inst.Parent) {
			return
		}
		inst.Parent = orphansRoot
		orphanCount++
		logging.Warn("comexeapp.tree", "instance orphaned", map[string]any{
			"offset": inst.Offset,
			"name":   inst.ModuleName,
		})
	})
	return orphanCount
}

func containsInstanceLocked(app *Application, target *instance.Instance) bool {
	found := false
	app.Registry.Range(func(_ uint64, object any) {
		if object.(*instance.Instance) == target {
			found = true
		}
	})
	return found
}

// printThreadHierarchy writes a textual tree of every instance whose
// Parent is node, recursing depth-first. The tree is not stored
// explicitly anywhere; it is rebuilt each call by scanning the registry
// for matching Parent pointers.
func printThreadHierarchy(w io.Writer, app *Application, node *instance.Instance, level int) {
	prefix := "* "
	if level > 0 {
		prefix = "|" + strings.Repeat("   |", level-1) + "---"
	}
	fmt.Fprintf(w, "%s[%s] ThreadId=%d\n", prefix, node.ModuleName, node.Offset)

	app.mu.Lock()
	var children []*instance.Instance
	app.Registry.Range(func(_ uint64, object any) {
		inst := object.(*instance.Instance)
		if inst.Parent == node {
			children = append(children, inst)
		}
	})
	app.mu.Unlock()

	for _, child := range children {
		printThreadHierarchy(w, app, child, level+1)
	}
}

// RunApplication joins the main instance (offset 1), then audits the
// registry: any instances still present are orphans (their creator
// returned without joining them). It reparents them onto a synthetic
// root, prints a warning and the resulting hierarchy, and always returns
// success — per §4.I this audit is a diagnostic, not a failure
// condition.
func RunApplication(app *Application) int {
	Join(app, 1)

	app.mu.Lock()
	remaining := app.Registry.Count() - 1 // slot 0 is permanently reserved
	app.mu.Unlock()

	if remaining > 0 {
		cleanupOrphans(app)
		fmt.Fprintf(app.Stderr, "WARNING: %d thread(s) are still active\n", remaining)
		printThreadHierarchy(app.Stderr, app, orphansRoot, 0)
		logging.Warn("comexeapp.tree", "instances still active at shutdown", map[string]any{
			"count": remaining,
		})
	}

	return ExitSuccess
}
