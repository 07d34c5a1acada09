package routes

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/lgulliver/quarry/pkg/types"
)

// RegistryServiceInterface defines the contract for registry services
type RegistryServiceInterface interface {
	ListIDs(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, id string, req *semver.Constraints, limit int) ([]types.ModuleVersion, error)
	Download(ctx context.Context, id string, version *semver.Version) ([]byte, error)
	Publish(ctx context.Context, id string, version *semver.Version, data []byte, token string) (*types.ModuleVersion, error)
	Delete(ctx context.Context, id string, version *semver.Version, adminToken string) error
	AddCredential(ctx context.Context, adminToken, user, token string) (string, error)
	RemoveCredential(ctx context.Context, adminToken string, token, user *string) error
	Reconcile(ctx context.Context, adminToken string) (*types.ReconcileReport, error)
	AuthorizeAdmin(token string) bool
	AuthorizePublisher(ctx context.Context, token string) (bool, error)
}
