package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Layers, innermost first. A package may import its own layer and anything
// listed before it, never what comes after.
var layerRules = []struct {
	prefix string
	banned []string
}{
	{"internal/domain/", []string{"data/", "services/", "http/", "jobs/", "temporalx/", "clients/", "app/"}},
	{"internal/platform/", []string{"data/", "services/", "http/", "jobs/", "temporalx/", "clients/", "app/"}},
	{"internal/data/", []string{"services/", "http/", "jobs/", "temporalx/", "clients/", "app/"}},
	{"internal/services/", []string{"http/", "jobs/", "temporalx/", "clients/", "app/"}},
	{"internal/jobs/", []string{"http/", "temporalx/", "clients/", "app/"}},
	{"internal/temporalx/", []string{"http/", "jobs/", "clients/", "app/"}},
	{"internal/http/", []string{"data/", "jobs/", "temporalx/", "app/"}},
}

type importRef struct {
	file string
	imp  string
}

func TestImportBoundaries(t *testing.T) {
	modulePath, refs := internalImports(t)
	var b strings.Builder
	for _, r := range refs {
		for _, rule := range layerRules {
			if !strings.HasPrefix(r.file, rule.prefix) {
				continue
			}
			for _, banned := range rule.banned {
				if strings.HasPrefix(r.imp, modulePath+"/internal/"+banned) {
					fmt.Fprintf(&b, "- %s imports %q (%s may not import internal/%s)\n", r.file, r.imp, rule.prefix, banned)
				}
			}
		}
	}
	if b.Len() > 0 {
		t.Fatal("import boundary violations:\n" + b.String())
	}
}

// Third-party integrations are wired at the edges: the app composition root
// and HTTP handlers. Everything else depends on interfaces.
func TestClientsOnlyImportedAtTheEdges(t *testing.T) {
	modulePath, refs := internalImports(t)
	allowed := []string{"internal/app/", "internal/http/", "internal/clients/"}
	var b strings.Builder
	for _, r := range refs {
		if !strings.HasPrefix(r.imp, modulePath+"/internal/clients/") {
			continue
		}
		ok := false
		for _, prefix := range allowed {
			if strings.HasPrefix(r.file, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			fmt.Fprintf(&b, "- %s imports %q\n", r.file, r.imp)
		}
	}
	if b.Len() > 0 {
		t.Fatal("internal/clients imported outside app and http:\n" + b.String())
	}
}

func internalImports(t *testing.T) (string, []importRef) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var refs []importRef
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			refs = append(refs, importRef{file: filepath.ToSlash(rel), imp: imp})
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return modulePath, refs
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if mp, ok := strings.CutPrefix(line, "module "); ok {
			if mp = strings.TrimSpace(mp); mp != "" {
				return mp, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
