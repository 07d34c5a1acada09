package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/lgulliver/quarry/internal/common"
	"github.com/lgulliver/quarry/pkg/auth"
	"github.com/lgulliver/quarry/pkg/config"
	"github.com/lgulliver/quarry/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the credential store. Publisher tokens live in the database,
// admin tokens come from configuration.
type Service struct {
	db          *common.Database
	adminHashes []string
}

// NewService creates a new credential service
func NewService(db *common.Database, config *config.AuthConfig) *Service {
	s := &Service{db: db}
	if config != nil {
		for _, key := range config.AdminKeys {
			if key == "" {
				continue
			}
			s.adminHashes = append(s.adminHashes, auth.HashAPIKey(key))
		}
	}

	if len(s.adminHashes) == 0 {
		log.Warn().Msg("no admin keys configured, admin operations are disabled")
	}
	return s
}

// IsAdmin reports whether token is one of the configured admin tokens
func (s *Service) IsAdmin(token string) bool {
	if token == "" {
		return false
	}
	hash := auth.HashAPIKey(token)
	match := 0
	for _, admin := range s.adminHashes {
		match |= subtle.ConstantTimeCompare([]byte(hash), []byte(admin))
	}
	return match == 1
}

// Insert stores token for user unless the token is already registered
func (s *Service) Insert(ctx context.Context, user, token string) (bool, error) {
	key := types.PublishKey{
		KeyHash:  auth.HashAPIKey(token),
		UserName: user,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&key)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert publish key: %w", result.Error)
	}

	if result.RowsAffected == 1 {
		log.Info().Str("user", user).Msg("publish key added")
	}
	return result.RowsAffected == 1, nil
}

// ResolveByToken returns the credential owning token, or nil if there is none
func (s *Service) ResolveByToken(ctx context.Context, token string) (*types.Credential, error) {
	if token == "" {
		return nil, nil
	}

	var key types.PublishKey
	if err := s.db.WithContext(ctx).Where("key_hash = ?", auth.HashAPIKey(token)).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up publish key: %w", err)
	}

	return &types.Credential{User: key.UserName, KeyHash: key.KeyHash}, nil
}

// DeleteByToken removes a single token
func (s *Service) DeleteByToken(ctx context.Context, token string) (bool, error) {
	result := s.db.WithContext(ctx).Where("key_hash = ?", auth.HashAPIKey(token)).Delete(&types.PublishKey{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete publish key: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteByUser removes every token owned by user
func (s *Service) DeleteByUser(ctx context.Context, user string) (bool, error) {
	result := s.db.WithContext(ctx).Where("user_name = ?", user).Delete(&types.PublishKey{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete publish keys: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Info().Str("user", user).Int64("count", result.RowsAffected).Msg("publish keys removed")
	}
	return result.RowsAffected > 0, nil
}

// GenerateToken issues a new random publisher token
func (s *Service) GenerateToken() (string, error) {
	return auth.GenerateAPIKey()
}
