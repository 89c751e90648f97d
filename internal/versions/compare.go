package versions

import "github.com/Masterminds/semver/v3"

// AtLeast reports whether version is greater than or equal to minimum.
// A leading "v" is accepted. Versions that are not semver never satisfy the
// minimum.
func AtLeast(version, minimum string) bool {
	have, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	want, err := semver.NewVersion(minimum)
	if err != nil {
		return false
	}
	return !have.LessThan(want)
}
