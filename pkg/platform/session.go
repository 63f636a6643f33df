package platform

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Session holds the shared AWS config plus the STS client used for the
// pre-flight identity check.
type Session struct {
	Config aws.Config
	STS    *sts.Client
}

// NewSession initializes a session with default credentials for the region.
func NewSession(ctx context.Context, region string) (*Session, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %v", err)
	}

	return &Session{
		Config: cfg,
		STS:    sts.NewFromConfig(cfg),
	}, nil
}

// VerifyIdentity checks if the credentials are valid and returns the caller account.
func (s *Session) VerifyIdentity(ctx context.Context) (string, error) {
	result, err := s.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %v", err)
	}
	return *result.Account, nil
}
