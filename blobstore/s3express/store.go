// Package s3express implements appendblob.Store on S3 Express One Zone
// directory buckets, which accept appends through PutObject with a write offset.
package s3express

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-utils/v2/log"
)

const bucketSuffix = "--x-s3"

// Client is the subset of the S3 API the store calls.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListDirectoryBuckets(ctx context.Context, params *s3.ListDirectoryBucketsInput, optFns ...func(*s3.Options)) (*s3.ListDirectoryBucketsOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Options ...
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the regional S3 endpoint.
	Endpoint string
}

// Store appends to objects of directory buckets.
type Store struct {
	client Client
	logger log.Logger
}

var _ appendblob.Store = (*Store)(nil)

// NewStore builds an S3 client from the default AWS config chain, or from
// static keys when both are given.
func NewStore(ctx context.Context, opts Options, logger log.Logger) (*Store, error) {
	cfg, err := loadAWSConfig(ctx, opts.Region, opts.AccessKeyID, opts.SecretAccessKey, logger)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return New(client, logger), nil
}

// New wraps an existing client.
func New(client Client, logger log.Logger) *Store {
	return &Store{client: client, logger: logger}
}

func loadAWSConfig(ctx context.Context, region, accessKeyID, secretKey string, logger log.Logger) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}

func (s *Store) AppendBlock(ctx context.Context, bucket, key string, block []byte) error {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err)
	}
	if len(block) == 0 {
		return nil
	}

	offset := aws.ToInt64(head.ContentLength)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:           aws.String(bucket),
		Key:              aws.String(key),
		Body:             bytes.NewReader(block),
		ContentLength:    aws.Int64(int64(len(block))),
		WriteOffsetBytes: aws.Int64(offset),
	})
	return classify(err)
}

func (s *Store) CreateObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		IfNoneMatch:   aws.String("*"),
	})
	if alreadyExists(err) {
		s.logger.Debugf("Object %s/%s already exists", bucket, key)
		return nil
	}
	return classify(err)
}

func (s *Store) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if appendblob.KindOf(classify(err)) == appendblob.KindObjectMissing {
		return false, nil
	}
	return false, classify(err)
}

func (s *Store) ListContainers(ctx context.Context) ([]string, error) {
	var names []string

	paginator := s3.NewListDirectoryBucketsPaginator(s.client, &s3.ListDirectoryBucketsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, bucket := range page.Buckets {
			names = append(names, aws.ToString(bucket.Name))
		}
	}

	return names, nil
}

func (s *Store) CreateContainer(ctx context.Context, bucket string) error {
	zone, err := ZoneID(bucket)
	if err != nil {
		return err
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
		CreateBucketConfiguration: &types.CreateBucketConfiguration{
			Location: &types.LocationInfo{
				Type: types.LocationTypeAvailabilityZone,
				Name: aws.String(zone),
			},
			Bucket: &types.BucketInfo{
				Type:           types.BucketTypeDirectory,
				DataRedundancy: types.DataRedundancySingleAvailabilityZone,
			},
		},
	})
	if bucketExists(err) {
		return nil
	}
	return classify(err)
}

// ZoneID returns the availability zone id of a directory bucket name
// (<base-name>--<zone-id>--x-s3).
func ZoneID(bucket string) (string, error) {
	trimmed, ok := strings.CutSuffix(bucket, bucketSuffix)
	if !ok {
		return "", fmt.Errorf("invalid directory bucket name %s: missing %s suffix", bucket, bucketSuffix)
	}
	i := strings.LastIndex(trimmed, "--")
	if i <= 0 || i+2 == len(trimmed) {
		return "", fmt.Errorf("invalid directory bucket name %s: missing zone id", bucket)
	}
	return trimmed[i+2:], nil
}
