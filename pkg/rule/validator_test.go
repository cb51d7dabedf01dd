package rule_test

import (
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/yeisme/sourcelens/pkg/rule"
)

type createVersion struct {
	ProjectID string `json:"projectId" rule:"required"`
	Version   string `json:"version"   rule:"required,semver"`
	Files     []int  `json:"files"     rule:"min=1"`
}

func TestEngine(t *testing.T) {
	if rule.Engine() == nil {
		t.Error("Engine() returned nil")
	}
}

func TestValidateStruct(t *testing.T) {
	if err := rule.ValidateStruct(createVersion{ProjectID: "web", Version: "1.2.3", Files: []int{1}}); err != nil {
		t.Errorf("valid struct: %v", err)
	}

	err := rule.ValidateStruct(createVersion{Version: "v1.2", Files: nil})
	if err == nil {
		t.Fatal("expected error")
	}

	errs := rule.Errors(err)
	for _, field := range []string{"createVersion.projectId", "createVersion.version", "createVersion.files"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("missing %s in %v", field, errs)
		}
	}

	if errs["createVersion.version"] != "failed on semver" {
		t.Errorf("version message = %q", errs["createVersion.version"])
	}
}

func TestSemver(t *testing.T) {
	tests := map[string]bool{
		"1.0.0":      true,
		"10.20.300":  true,
		"1.0":        false,
		"v1.0.0":     false,
		"1.0.0-beta": false,
		"":           false,
	}

	for v, want := range tests {
		if got := rule.IsSemver(v); got != want {
			t.Errorf("IsSemver(%q) = %v, want %v", v, got, want)
		}

		if err := rule.ValidateVar(v, "semver"); (err == nil) != want {
			t.Errorf("ValidateVar(%q) = %v", v, err)
		}
	}
}

func TestErrorsIgnoresOtherErrors(t *testing.T) {
	if rule.Errors(nil) != nil {
		t.Error("nil error produced fields")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := rule.RegisterValidation("map_file", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) > 4 && s[len(s)-4:] == ".map"
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := rule.ValidateVar("app.js.map", "map_file"); err != nil {
		t.Errorf("valid: %v", err)
	}

	if err := rule.ValidateVar("app.js", "map_file"); err == nil {
		t.Error("expected error")
	}
}

func TestSafePath(t *testing.T) {
	tests := map[string]bool{
		"app.min.js.map":        true,
		"static/js/main.js.map": true,
		"./a.js.map":            true,
		"..a.js.map":            true,
		"":                      false,
		"/etc/passwd":           false,
		"../a.js.map":           false,
		"static/../../a.js.map": false,
		"static\\a.js.map":      false,
		"a.js.map\n":            false,
	}

	for p, want := range tests {
		if got := rule.IsSafePath(p); got != want {
			t.Errorf("IsSafePath(%q) = %v, want %v", p, got, want)
		}
	}

	if err := rule.ValidateVar("../x.map", "safepath"); err == nil {
		t.Error("ValidateVar accepted a parent reference")
	}
}
