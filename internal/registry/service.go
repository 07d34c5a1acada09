package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/lgulliver/quarry/internal/artifact"
	"github.com/lgulliver/quarry/internal/auth"
	"github.com/lgulliver/quarry/internal/catalog"
	"github.com/lgulliver/quarry/pkg/types"
	"github.com/lgulliver/quarry/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Service coordinates the catalog, the artifact store and the credential
// store. Publish and Delete each touch two stores without a shared
// transaction; see Publish and Delete for what a failure part way leaves
// behind.
type Service struct {
	Catalog     *catalog.Service
	Artifacts   *artifact.Store
	Credentials *auth.Service
}

// NewService creates a new registry service
func NewService(catalog *catalog.Service, artifacts *artifact.Store, credentials *auth.Service) *Service {
	return &Service{
		Catalog:     catalog,
		Artifacts:   artifacts,
		Credentials: credentials,
	}
}

// AuthorizeAdmin reports whether token is a configured admin token
func (s *Service) AuthorizeAdmin(token string) bool {
	return s.Credentials.IsAdmin(token)
}

// AuthorizePublisher reports whether token is a registered publisher token
func (s *Service) AuthorizePublisher(ctx context.Context, token string) (bool, error) {
	cred, err := s.Credentials.ResolveByToken(ctx, token)
	if err != nil {
		return false, err
	}
	return cred != nil, nil
}

func internal(err error) error {
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

func validateID(id string) error {
	if err := utils.ValidatePackageID(id); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Publish records id at version in the catalog and stores data for it.
// A version that is already in the catalog is never overwritten. If the
// artifact write fails the catalog row is removed again so the version can
// be retried.
func (s *Service) Publish(ctx context.Context, id string, version *semver.Version, data []byte, token string) (*types.ModuleVersion, error) {
	startTime := time.Now()

	ok, err := s.AuthorizePublisher(ctx, token)
	if err != nil {
		return nil, internal(err)
	}
	if !ok {
		log.Warn().Str("id", id).Msg("publish rejected: invalid publisher token")
		return nil, ErrUnauthorized
	}

	if err := validateID(id); err != nil {
		return nil, err
	}
	version = utils.CoreVersion(version)
	mv := &types.ModuleVersion{ID: id, Version: version}

	inserted, err := s.Catalog.Insert(ctx, id, version)
	if err != nil {
		return nil, internal(err)
	}
	if !inserted {
		return nil, fmt.Errorf("%w: %s", ErrConflict, mv)
	}

	if err := s.Artifacts.Put(ctx, id, version, data); err != nil {
		log.Error().Err(err).Str("module", mv.String()).Msg("artifact write failed, removing catalog entry")
		if _, rbErr := s.Catalog.Delete(ctx, id, version); rbErr != nil {
			log.Error().Err(rbErr).Str("module", mv.String()).Msg("failed to remove catalog entry after write failure")
		}
		return nil, internal(err)
	}

	log.Info().
		Str("module", mv.String()).
		Int("size", len(data)).
		Str("sha256", utils.ComputeSHA256(data)).
		Dur("duration", time.Since(startTime)).
		Msg("module published")

	return mv, nil
}

// Delete removes the artifact for id at version and then its catalog row.
// When the artifact is missing nothing is changed. When the artifact was
// removed but the catalog row was already gone, ErrNotFound is still
// returned.
func (s *Service) Delete(ctx context.Context, id string, version *semver.Version, adminToken string) error {
	if !s.AuthorizeAdmin(adminToken) {
		log.Warn().Str("id", id).Msg("delete rejected: invalid admin token")
		return ErrUnauthorized
	}

	if err := validateID(id); err != nil {
		return err
	}
	version = utils.CoreVersion(version)
	mv := types.ModuleVersion{ID: id, Version: version}

	if err := s.Artifacts.Remove(ctx, id, version); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, mv)
		}
		return internal(err)
	}

	deleted, err := s.Catalog.Delete(ctx, id, version)
	if err != nil {
		return internal(err)
	}
	if !deleted {
		log.Warn().Str("module", mv.String()).Msg("artifact removed but catalog entry was missing")
		return fmt.Errorf("%w: %s has no catalog entry", ErrNotFound, mv)
	}

	log.Info().Str("module", mv.String()).Msg("module deleted")
	return nil
}

// Resolve returns the versions of id matching req, latest first. A limit of
// 1 returns the single latest match or ErrNotFound, 0 returns every match
// and n returns at most n.
func (s *Service) Resolve(ctx context.Context, id string, req *semver.Constraints, limit int) ([]types.ModuleVersion, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalid)
	}

	matches, err := s.Catalog.Resolve(ctx, id, req, limit)
	if err != nil {
		return nil, internal(err)
	}
	if limit == 1 && len(matches) == 0 {
		return nil, fmt.Errorf("%w: no version of %s matches", ErrNotFound, id)
	}
	return matches, nil
}

// Download returns the stored bytes for id at version
func (s *Service) Download(ctx context.Context, id string, version *semver.Version) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := s.Artifacts.Get(ctx, id, version)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, id, utils.CoreVersion(version))
		}
		return nil, internal(err)
	}
	return data, nil
}

// ListIDs returns every package id in the catalog
func (s *Service) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.Catalog.ListIDs(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return ids, nil
}

// AddCredential registers token as a publisher token owned by user. An
// empty token is replaced by a generated one. The registered token is
// returned.
func (s *Service) AddCredential(ctx context.Context, adminToken, user, token string) (string, error) {
	if !s.AuthorizeAdmin(adminToken) {
		return "", ErrUnauthorized
	}
	if user == "" {
		return "", fmt.Errorf("%w: user is required", ErrInvalid)
	}

	if token == "" {
		generated, err := s.Credentials.GenerateToken()
		if err != nil {
			return "", internal(err)
		}
		token = generated
	}

	inserted, err := s.Credentials.Insert(ctx, user, token)
	if err != nil {
		return "", internal(err)
	}
	if !inserted {
		return "", fmt.Errorf("%w: publish key", ErrConflict)
	}
	return token, nil
}

// RemoveCredential deletes a single token, or every token of user when no
// token is given.
func (s *Service) RemoveCredential(ctx context.Context, adminToken string, token, user *string) error {
	if !s.AuthorizeAdmin(adminToken) {
		return ErrUnauthorized
	}

	var (
		deleted bool
		err     error
	)
	switch {
	case token != nil:
		deleted, err = s.Credentials.DeleteByToken(ctx, *token)
	case user != nil:
		deleted, err = s.Credentials.DeleteByUser(ctx, *user)
	default:
		return fmt.Errorf("%w: either pw or user is required", ErrInvalid)
	}

	if err != nil {
		return internal(err)
	}
	if !deleted {
		return fmt.Errorf("%w: publish key", ErrNotFound)
	}
	return nil
}

// Reconcile removes catalog entries whose artifact is missing, such as those
// left by a process that died between the catalog insert and the artifact
// write of a publish. A publish running concurrently for the same version
// can be caught between its two steps and have its entry removed; run it
// when publishing is quiet.
func (s *Service) Reconcile(ctx context.Context, adminToken string) (*types.ReconcileReport, error) {
	if !s.AuthorizeAdmin(adminToken) {
		return nil, ErrUnauthorized
	}

	all, err := s.Catalog.All(ctx)
	if err != nil {
		return nil, internal(err)
	}

	report := &types.ReconcileReport{
		Checked: len(all),
		Removed: make([]types.ModuleVersion, 0),
	}
	for _, mv := range all {
		exists, err := s.Artifacts.Exists(ctx, mv.ID, mv.Version)
		if err != nil {
			return nil, internal(err)
		}
		if exists {
			continue
		}
		s.Artifacts.Evict(ctx, mv.ID, mv.Version)

		deleted, err := s.Catalog.Delete(ctx, mv.ID, mv.Version)
		if err != nil {
			return nil, internal(err)
		}
		if deleted {
			log.Warn().Str("module", mv.String()).Msg("removed catalog entry without artifact")
			report.Removed = append(report.Removed, mv)
		}
	}

	log.Info().Int("checked", report.Checked).Int("removed", len(report.Removed)).Msg("reconcile finished")
	return report, nil
}
