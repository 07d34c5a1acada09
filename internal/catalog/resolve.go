package catalog

import (
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/lgulliver/quarry/pkg/types"
	"github.com/lgulliver/quarry/pkg/utils"
)

// Select filters versions by req and returns at most limit matches, latest
// first. A limit of 0 returns every match. A nil req matches every version.
// The input slice is not modified.
func Select(id string, versions []*semver.Version, req *semver.Constraints, limit int) []types.ModuleVersion {
	ordered := slices.Clone(versions)
	utils.SortDescending(ordered)

	matches := make([]types.ModuleVersion, 0)
	for _, v := range ordered {
		if req != nil && !req.Check(v) {
			continue
		}
		matches = append(matches, types.ModuleVersion{ID: id, Version: v})
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches
}
