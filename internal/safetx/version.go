package safetx

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// DefaultVersion is assumed for master copies that report a baseGas field
	// but were never registered with an explicit version.
	DefaultVersion = "1.3.0"

	// LegacyVersion stands in for master copies that still report the gas
	// overhead as dataGas, which only contracts older than 1.0.0 do.
	LegacyVersion = "0.0.1"
)

var (
	// baseGasRenameVersion is where the dataGas field of the signed payload
	// became baseGas.
	baseGasRenameVersion = semver.New(1, 0, 0, "", "")

	// chainIDDomainVersion is where the chain id joined the signing domain.
	chainIDDomainVersion = semver.New(1, 3, 0, "", "")
)

// signatureBreakingVersions lists, in ascending order, the master copy versions
// whose signed payload is incompatible with the one before them. Upgrading a
// wallet across any of these invalidates signatures collected for queued
// transactions.
var signatureBreakingVersions = []*semver.Version{
	baseGasRenameVersion,
	chainIDDomainVersion,
}

// BreaksSignatures reports whether moving a wallet between the two master copy
// versions crosses a boundary that changes the signed payload. The order of the
// arguments does not matter, and pre-release or build metadata suffixes are
// ignored, so "1.3.0+L2" compares as "1.3.0".
func BreaksSignatures(oldVersion, newVersion string) (bool, error) {
	older, err := baseVersion(oldVersion)
	if err != nil {
		return false, err
	}

	newer, err := baseVersion(newVersion)
	if err != nil {
		return false, err
	}

	if newer.LessThan(older) {
		older, newer = newer, older
	}

	for _, boundary := range signatureBreakingVersions {
		if older.LessThan(boundary) && !newer.LessThan(boundary) {
			return true, nil
		}
	}

	return false, nil
}

// baseVersion parses a master copy version and strips any pre-release or build
// metadata, keeping only the major.minor.patch triple.
func baseVersion(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing master copy version %q: %w", raw, err)
	}

	return semver.New(v.Major(), v.Minor(), v.Patch(), "", ""), nil
}
