package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/configsvc"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/s3store"
)

// Deliverer is the AWS Config side of a region.
type Deliverer interface {
	BucketName(ctx context.Context) (string, error)
	DeliverSnapshot(ctx context.Context) (string, error)
}

// ObjectStore is the S3 side of a region.
type ObjectStore interface {
	ObjectLister
	Download(ctx context.Context, bucket, key, path string) (int64, error)
}

// Endpoints are the clients a region run talks to.
type Endpoints struct {
	Config  Deliverer
	Objects ObjectStore
}

// Connector resolves the endpoints of a region.
type Connector interface {
	Connect(ctx context.Context, region string) (Endpoints, error)
}

// AWSConnector builds AWS SDK clients per region from the default credential
// chain and caches them for the life of the process.
type AWSConnector struct {
	base   aws.Config
	logger *slog.Logger

	mu      sync.Mutex
	regions map[string]Endpoints
}

// NewAWSConnector loads the shared AWS configuration (environment, shared
// config files, instance role).
func NewAWSConnector(ctx context.Context, logger *slog.Logger) (*AWSConnector, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return &AWSConnector{
		base:    cfg,
		logger:  logger,
		regions: make(map[string]Endpoints),
	}, nil
}

func (c *AWSConnector) Connect(_ context.Context, region string) (Endpoints, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep, ok := c.regions[region]; ok {
		return ep, nil
	}
	cfg := c.base.Copy()
	cfg.Region = region
	ep := Endpoints{
		Config:  configsvc.NewFromConfig(cfg, c.logger),
		Objects: s3store.NewFromConfig(cfg, c.logger),
	}
	c.regions[region] = ep
	return ep, nil
}
