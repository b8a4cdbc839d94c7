package token

import (
	"context"
	"testing"

	"quizclash/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisRepositoryTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	repo   Repository
}

func (s *RedisRepositoryTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	repo, err := NewRedis(&Config{RedisClient: s.client})
	s.Require().NoError(err)
	s.repo = repo
}

func (s *RedisRepositoryTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestRedisRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RedisRepositoryTestSuite))
}

func (s *RedisRepositoryTestSuite) TestSaveAndGetToken() {
	ctx := context.Background()

	err := s.repo.SaveToken(ctx, &SaveTokenInput{
		GamePin: "123456",
		UserID:  1,
		Token: &models.ReconnectionToken{
			Token:      "secret-1",
			PlayerData: models.PlayerDescriptor{UserID: 1, Name: "Alice", Initial: "A"},
			CreatedAt:  1700000000000,
		},
	})
	s.Require().NoError(err)

	got, err := s.repo.GetToken(ctx, &GetTokenInput{GamePin: "123456", UserID: 1})
	s.Require().NoError(err)
	s.Equal("secret-1", got.Token)
	s.Equal("Alice", got.PlayerData.Name)
	s.Equal(int64(1700000000000), got.CreatedAt)
}

func (s *RedisRepositoryTestSuite) TestGetTokenNotFound() {
	_, err := s.repo.GetToken(context.Background(), &GetTokenInput{GamePin: "123456", UserID: 1})
	s.ErrorIs(err, ErrTokenNotFound)
}

func (s *RedisRepositoryTestSuite) TestSaveTokenOverwrites() {
	ctx := context.Background()

	for _, secret := range []string{"first", "second"} {
		err := s.repo.SaveToken(ctx, &SaveTokenInput{
			GamePin: "123456",
			UserID:  1,
			Token:   &models.ReconnectionToken{Token: secret},
		})
		s.Require().NoError(err)
	}

	got, err := s.repo.GetToken(ctx, &GetTokenInput{GamePin: "123456", UserID: 1})
	s.Require().NoError(err)
	s.Equal("second", got.Token)
}

func (s *RedisRepositoryTestSuite) TestDeleteToken() {
	ctx := context.Background()

	err := s.repo.SaveToken(ctx, &SaveTokenInput{
		GamePin: "123456",
		UserID:  1,
		Token:   &models.ReconnectionToken{Token: "secret-1"},
	})
	s.Require().NoError(err)

	err = s.repo.DeleteToken(ctx, &DeleteTokenInput{GamePin: "123456", UserID: 1})
	s.Require().NoError(err)

	_, err = s.repo.GetToken(ctx, &GetTokenInput{GamePin: "123456", UserID: 1})
	s.ErrorIs(err, ErrTokenNotFound)
}
