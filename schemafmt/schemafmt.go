// Package schemafmt validates the optional schema_version stamped on saved
// flow documents.
package schemafmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/petal-labs/botflow/graph"
)

const (
	SupportedFlowSchemaMajor = 1
	CurrentFlowSchemaVersion = "1.0.0"

	// CodeSchemaVersion is the diagnostic code for schema_version problems.
	CodeSchemaVersion = "SV-001"
)

var semverPattern = regexp.MustCompile(
	`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)` +
		`(?:-((?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*)` +
		`(?:\.(?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*))*))?` +
		`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// ParseMajor returns the MAJOR component of a SemVer 2.0.0 string.
func ParseMajor(version string) (int, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		return 0, fmt.Errorf("schema_version is empty")
	}
	match := semverPattern.FindStringSubmatch(v)
	if match == nil {
		return 0, fmt.Errorf("schema_version %q must be a valid semantic version (MAJOR.MINOR.PATCH)", version)
	}
	major, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parsing schema_version major: %w", err)
	}
	return major, nil
}

// ValidateSchemaVersion ensures version is valid SemVer with a supported
// MAJOR.
func ValidateSchemaVersion(version string, supportedMajor int) error {
	major, err := ParseMajor(version)
	if err != nil {
		return err
	}
	if major != supportedMajor {
		return fmt.Errorf("schema_version %q has unsupported major %d (supported: %d.x.x)", version, major, supportedMajor)
	}
	return nil
}

// ValidateVersion checks a flow document's schema_version and reports the
// result as diagnostics.
func ValidateVersion(version string) []graph.Diagnostic {
	if err := ValidateSchemaVersion(version, SupportedFlowSchemaMajor); err != nil {
		return []graph.Diagnostic{{
			Code:     CodeSchemaVersion,
			Severity: graph.SeverityError,
			Message:  err.Error(),
			Path:     "schema_version",
		}}
	}
	return nil
}
