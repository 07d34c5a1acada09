package catalog

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/lgulliver/quarry/internal/common"
	"github.com/lgulliver/quarry/pkg/types"
	"gorm.io/gorm/clause"
)

// Service is the version catalog: one row per published (id, version)
type Service struct {
	db *common.Database
}

// NewService creates a new catalog service
func NewService(db *common.Database) *Service {
	return &Service{db: db}
}

// ListIDs returns every package id with at least one version, sorted
func (s *Service) ListIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	if err := s.db.WithContext(ctx).Model(&types.Mod{}).Distinct("id").Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list package ids: %w", err)
	}
	return ids, nil
}

// Insert adds the row for id at v unless it already exists. The primary key
// decides between concurrent inserts of the same key, so exactly one caller
// gets true.
func (s *Service) Insert(ctx context.Context, id string, v *semver.Version) (bool, error) {
	mod := types.NewMod(id, v)
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&mod)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Delete removes the row for id at v and reports whether it existed
func (s *Service) Delete(ctx context.Context, id string, v *semver.Version) (bool, error) {
	mod := types.NewMod(id, v)
	result := s.db.WithContext(ctx).
		Where("id = ? AND major = ? AND minor = ? AND patch = ?", mod.ID, mod.Major, mod.Minor, mod.Patch).
		Delete(&types.Mod{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete %s: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// VersionsDescending returns every version of id, latest first by
// major, minor and patch
func (s *Service) VersionsDescending(ctx context.Context, id string) ([]*semver.Version, error) {
	var mods []types.Mod
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Order("major DESC").Order("minor DESC").Order("patch DESC").
		Find(&mods).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", id, err)
	}

	versions := make([]*semver.Version, len(mods))
	for i, m := range mods {
		versions[i] = m.ModuleVersion().Version
	}
	return versions, nil
}

// All returns every catalog row ordered by id, then latest version first
func (s *Service) All(ctx context.Context) ([]types.ModuleVersion, error) {
	var mods []types.Mod
	err := s.db.WithContext(ctx).
		Order("id").Order("major DESC").Order("minor DESC").Order("patch DESC").
		Find(&mods).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	all := make([]types.ModuleVersion, len(mods))
	for i, m := range mods {
		all[i] = m.ModuleVersion()
	}
	return all, nil
}

// Resolve returns the versions of id matching req, latest first, limited as
// described by Select
func (s *Service) Resolve(ctx context.Context, id string, req *semver.Constraints, limit int) ([]types.ModuleVersion, error) {
	versions, err := s.VersionsDescending(ctx, id)
	if err != nil {
		return nil, err
	}
	return Select(id, versions, req, limit), nil
}
