package security

import (
	"strings"
	"testing"
)

func TestValidateIsSafeIffNoBlockingViolation(t *testing.T) {
	cases := []struct {
		name string
		code string
		deps []string
	}{
		{"benign", "print('hello')", nil},
		{"fork bomb", ":(){ :|:& };:", nil},
		{"warn only import", "import os\nos.system('ls')", nil},
		{"suspicious dep", "print(1)", []string{"xmrig-wrapper"}},
	}
	for _, tc := range cases {
		v := Validate(tc.code, "Python", tc.deps)
		anyBlock := false
		for _, violation := range v.Violations {
			if violation.ShouldBlock {
				anyBlock = true
			}
		}
		if v.IsSafe == anyBlock {
			t.Fatalf("%s: is_safe=%v inconsistent with blocking violations present=%v", tc.name, v.IsSafe, anyBlock)
		}
	}
}

func TestValidateForkBombBlocks(t *testing.T) {
	v := Validate(":(){ :|:& };:", "Python", nil)
	if v.IsSafe {
		t.Fatalf("expected fork bomb to be unsafe")
	}
	if !strings.Contains(BlockingDescriptions(v), "Fork bomb") {
		t.Fatalf("expected blocking description to mention fork bomb, got %q", BlockingDescriptions(v))
	}
}

func TestValidateCodeSizeBoundary(t *testing.T) {
	exact := make([]byte, MaxCodeSize)
	for i := range exact {
		exact[i] = 'a'
	}
	if v := Validate(string(exact), "Python", nil); !v.IsSafe {
		t.Fatalf("expected exactly MaxCodeSize bytes to pass")
	}
	over := append(exact, 'a')
	if v := Validate(string(over), "Python", nil); v.IsSafe {
		t.Fatalf("expected MaxCodeSize+1 bytes to be blocked")
	}
}

func TestValidateDependencyCountBoundary(t *testing.T) {
	exact := make([]string, MaxDependencies)
	for i := range exact {
		exact[i] = "pkg"
	}
	if v := Validate("print(1)", "Python", exact); !v.IsSafe {
		t.Fatalf("expected exactly MaxDependencies to pass")
	}
	over := append(exact, "pkg")
	if v := Validate("print(1)", "Python", over); v.IsSafe {
		t.Fatalf("expected MaxDependencies+1 to be blocked")
	}
}

func TestValidateLanguageSymbolsWarnOnly(t *testing.T) {
	v := Validate("os.system('ls')", "Python", nil)
	if !v.IsSafe {
		t.Fatalf("expected language-import warning to not block")
	}
	found := false
	for _, violation := range v.Violations {
		if violation.Description != "" && violation.Severity == Medium && !violation.ShouldBlock {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warn-only medium violation, got %+v", v.Violations)
	}
}

func TestValidateSuspiciousDependencyBlocks(t *testing.T) {
	v := Validate("print(1)", "Python", []string{"totally-legit-monero-helper"})
	if v.IsSafe {
		t.Fatalf("expected suspicious dependency to block")
	}
}
