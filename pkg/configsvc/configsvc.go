// Package configsvc talks to AWS Config for one region: it resolves the S3
// bucket of the delivery channel and triggers configuration snapshot
// deliveries.
package configsvc

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

// defaultChannelName is used when the channel status does not name one.
const defaultChannelName = "default"

// API is the subset of the AWS Config client used here.
type API interface {
	DescribeDeliveryChannels(ctx context.Context, params *configservice.DescribeDeliveryChannelsInput, optFns ...func(*configservice.Options)) (*configservice.DescribeDeliveryChannelsOutput, error)
	DescribeDeliveryChannelStatus(ctx context.Context, params *configservice.DescribeDeliveryChannelStatusInput, optFns ...func(*configservice.Options)) (*configservice.DescribeDeliveryChannelStatusOutput, error)
	DeliverConfigSnapshot(ctx context.Context, params *configservice.DeliverConfigSnapshotInput, optFns ...func(*configservice.Options)) (*configservice.DeliverConfigSnapshotOutput, error)
}

// Client wraps the AWS Config API for a single region.
type Client struct {
	api    API
	region string
	logger *slog.Logger
}

// New wraps an AWS Config API client for region.
func New(api API, region string, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		region: region,
		logger: logger.With("component", "configsvc", "region", region),
	}
}

// NewFromConfig builds a Client from a loaded AWS config.
func NewFromConfig(cfg aws.Config, logger *slog.Logger) *Client {
	return New(configservice.NewFromConfig(cfg), cfg.Region, logger)
}

// BucketName returns the S3 bucket of the region's first delivery channel.
// A region without a channel, or one that cannot be described, yields
// ErrNoDeliveryChannel.
func (c *Client) BucketName(ctx context.Context) (string, error) {
	out, err := c.api.DescribeDeliveryChannels(ctx, &configservice.DescribeDeliveryChannelsInput{})
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrNoDeliveryChannel, 0, "describing delivery channels in %s: %v", c.region, err)
	}
	if len(out.DeliveryChannels) == 0 {
		return "", apperrors.Newf(apperrors.ErrNoDeliveryChannel, 0, "no delivery channel configured in %s", c.region)
	}
	bucket := aws.ToString(out.DeliveryChannels[0].S3BucketName)
	if bucket == "" {
		return "", apperrors.Newf(apperrors.ErrNoDeliveryChannel, 0, "delivery channel in %s has no S3 bucket", c.region)
	}
	return bucket, nil
}

// DeliverSnapshot asks AWS Config to export a configuration snapshot and
// returns its id. The delivery channel must report a status first; any
// failure, throttling included, is ErrDeliveryFailed and is not retried.
func (c *Client) DeliverSnapshot(ctx context.Context) (string, error) {
	status, err := c.api.DescribeDeliveryChannelStatus(ctx, &configservice.DescribeDeliveryChannelStatusInput{})
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrDeliveryFailed, 0, "region %s is not set up for AWS Config: %v", c.region, err)
	}
	c.logger.Debug("delivery channel status", "channels", len(status.DeliveryChannelsStatus))
	if len(status.DeliveryChannelsStatus) == 0 {
		return "", apperrors.Newf(apperrors.ErrDeliveryFailed, 0, "no delivery channel status in %s", c.region)
	}

	name := aws.ToString(status.DeliveryChannelsStatus[0].Name)
	if name == "" {
		name = defaultChannelName
	}
	out, err := c.api.DeliverConfigSnapshot(ctx, &configservice.DeliverConfigSnapshotInput{
		DeliveryChannelName: aws.String(name),
	})
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrDeliveryFailed, 0, "delivering snapshot on channel %s (possibly throttled): %v", name, err)
	}
	id := aws.ToString(out.ConfigSnapshotId)
	if id == "" {
		return "", apperrors.Newf(apperrors.ErrDeliveryFailed, 0, "channel %s returned no snapshot id", name)
	}
	c.logger.Debug("snapshot delivery triggered", "channel", name, "snapshot_id", id)
	return id, nil
}
