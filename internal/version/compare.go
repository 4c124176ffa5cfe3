package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// CheckCompatibility checks whether a config written against schemaVersion
// can drive an engine at engineVersion.
//
// Compatibility rules:
//   - An empty schema version means the config pins nothing; the check passes
//   - If either version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
func CheckCompatibility(engineVersion, schemaVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	schemaVersion = strings.TrimPrefix(schemaVersion, "v")

	if schemaVersion == "" {
		return nil
	}

	if engineVersion == "main" || schemaVersion == "main" {
		return nil
	}

	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaVersionInvalid, err, "invalid engine version %q", engineVersion)
	}

	schema, err := semver.NewVersion(schemaVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaVersionInvalid, err, "invalid schema version %q", schemaVersion)
	}

	if engine.Major() != schema.Major() {
		return errors.Newf(errors.ErrCodeSchemaVersionInvalid,
			"major version mismatch: engine is %d.x.x but config targets %d.x.x",
			engine.Major(), schema.Major())
	}

	if engine.Minor() != schema.Minor() {
		return errors.Newf(errors.ErrCodeSchemaVersionInvalid,
			"minor version mismatch: engine is %d.%d.x but config targets %d.%d.x",
			engine.Major(), engine.Minor(),
			schema.Major(), schema.Minor())
	}

	return nil
}
