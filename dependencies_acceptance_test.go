package recyclebin_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestModuleDependencies_GormPresent(t *testing.T) {
	testModulePresence(t, "gorm.io/gorm")
}

func TestModuleDependencies_SQLitePresent(t *testing.T) {
	testModulePresence(t, "github.com/glebarez/sqlite")
}

func TestModuleDependencies_PostgresPresent(t *testing.T) {
	testModulePresence(t, "gorm.io/driver/postgres")
}

func TestModuleDependencies_KoanfPresent(t *testing.T) {
	testModulePresence(t, "github.com/knadh/koanf/v2")
}

func TestModuleDependencies_GinxPresent(t *testing.T) {
	testModulePresence(t, "github.com/simp-lee/ginx")
}

func TestModuleDependencies_PaginationPresent(t *testing.T) {
	testModulePresence(t, "github.com/simp-lee/pagination")
}

// Rows in the trash must only be reachable through the softdelete package.
func TestSoftDelete_NoUnscopedOutsideSoftdelete(t *testing.T) {
	t.Run("happy_repo_has_no_unscoped_calls", func(t *testing.T) {
		matches, err := findUnscopedUsages(".")
		if err != nil {
			t.Fatalf("scan repository: %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("expected no Unscoped() calls outside internal/softdelete, found in: %v", matches)
		}
	})

	t.Run("error_fixture_with_unscoped_is_detected", func(t *testing.T) {
		fixture := `package user
func all(db *gorm.DB) { db.Unscoped().Find(&users) }`
		if !hasUnscoped(fixture) {
			t.Fatal("expected Unscoped call to be detected in fixture")
		}
	})
}

func testModulePresence(t *testing.T, module string) {
	t.Helper()

	t.Run("happy_present_in_real_go_mod", func(t *testing.T) {
		goMod, err := os.ReadFile("go.mod")
		if err != nil {
			t.Fatalf("read go.mod: %v", err)
		}
		if !moduleRequired(string(goMod), module) {
			t.Fatalf("expected module %q to be present in go.mod", module)
		}
	})

	t.Run("error_missing_module_in_fixture", func(t *testing.T) {
		fixture := `module example.com/demo

go 1.25.0

require (
	github.com/gin-gonic/gin v1.11.0
)`
		if moduleRequired(fixture, module) {
			t.Fatalf("expected fixture to not contain module %q", module)
		}
	})
}

func moduleRequired(goModContent, module string) bool {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(module) + `\s+v\S+`)
	return re.MatchString(goModContent)
}

func findUnscopedUsages(root string) ([]string, error) {
	matches := make([]string, 0)
	skip := filepath.Join("internal", "softdelete")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "vendor" || strings.HasPrefix(name, "_") || path == skip {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		if hasUnscoped(string(b)) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

var unscopedPattern = regexp.MustCompile(`\.Unscoped\s*\(`)

func hasUnscoped(content string) bool {
	return unscopedPattern.MatchString(content)
}
