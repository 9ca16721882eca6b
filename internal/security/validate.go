// Package security statically screens a code submission before any
// container is spawned. Validation is a pure function over the code
// text, its language, and its dependency list.
package security

import (
	"fmt"
	"strings"
)

const (
	// MaxCodeSize is the largest accepted code payload, in bytes.
	MaxCodeSize = 1 << 20 // 1 MiB
	// MaxDependencies is the largest accepted dependency list.
	MaxDependencies = 20
)

// Validate runs the size gates, the pattern catalogue, the per-language
// symbol list, and the dependency-name screen, in that order. languageName
// is the PascalCase name (language.Language.String()); an unrecognized
// language skips the symbol check.
func Validate(code string, languageName string, dependencies []string) Verdict {
	var violations []Violation

	if len(code) > MaxCodeSize {
		violations = append(violations, Violation{
			Description: fmt.Sprintf("code exceeds maximum size of %d bytes", MaxCodeSize),
			Severity:    High,
			ShouldBlock: true,
		})
	}
	if len(dependencies) > MaxDependencies {
		violations = append(violations, Violation{
			Description: fmt.Sprintf("dependency list exceeds maximum of %d entries", MaxDependencies),
			Severity:    Medium,
			ShouldBlock: true,
		})
	}

	for _, p := range catalogue {
		if p.re.MatchString(code) {
			violations = append(violations, Violation{
				Description: p.description,
				Severity:    p.severity,
				ShouldBlock: defaultShouldBlock(p.severity),
			})
		}
	}

	// Symbol hits warn but never block on their own.
	for _, symbol := range languageSymbols[languageName] {
		if strings.Contains(code, symbol) {
			violations = append(violations, Violation{
				Description: fmt.Sprintf("uses %s language import %q", languageName, symbol),
				Severity:    Medium,
				ShouldBlock: false,
			})
		}
	}

	for _, dep := range dependencies {
		lower := strings.ToLower(dep)
		for _, bad := range suspiciousDependencyNames {
			if strings.Contains(lower, bad) {
				violations = append(violations, Violation{
					Description: fmt.Sprintf("suspicious dependency name %q", dep),
					Severity:    High,
					ShouldBlock: true,
				})
				break
			}
		}
	}

	return Verdict{
		IsSafe:     !anyBlocks(violations),
		Violations: violations,
	}
}

func anyBlocks(violations []Violation) bool {
	for _, v := range violations {
		if v.ShouldBlock {
			return true
		}
	}
	return false
}

// BlockingDescriptions concatenates the descriptions of every blocking
// violation, for use in a 403 response body.
func BlockingDescriptions(v Verdict) string {
	var descs []string
	for _, violation := range v.Violations {
		if violation.ShouldBlock {
			descs = append(descs, violation.Description)
		}
	}
	return strings.Join(descs, "; ")
}
