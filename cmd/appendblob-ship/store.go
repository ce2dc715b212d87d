package main

import (
	"context"

	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-appendblob/blobstore/azure"
	"github.com/bitrise-io/go-appendblob/blobstore/s3express"
	"github.com/bitrise-io/go-appendblob/config"
	"github.com/bitrise-io/go-appendblob/credential"
	"github.com/bitrise-io/go-utils/v2/log"
)

// storeOpener returns the store of the configured backend and a function
// releasing what it started.
type storeOpener func(ctx context.Context, cfg config.Config, logger log.Logger) (appendblob.Store, func(), error)

func openStore(ctx context.Context, cfg config.Config, logger log.Logger) (appendblob.Store, func(), error) {
	noop := func() {}

	if cfg.Backend == config.BackendS3Express {
		store, err := s3express.NewStore(ctx, s3express.Options{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: string(cfg.AWSSecretAccessKey),
			Endpoint:        cfg.S3Endpoint,
		}, logger)
		if err != nil {
			return nil, noop, &config.Error{Err: err}
		}
		return store, noop, nil
	}

	opts := azure.Options{Endpoint: cfg.AzureStorageEndpoint, Logger: logger}

	switch {
	case cfg.UseMSI:
		logger.Infof("Using managed identity for %s", cfg.AzureStorageAccount)
		provider, err := credential.Start(ctx, credential.Options{
			IMDS: credential.IMDSOptions{
				Endpoint:   cfg.IMDSEndpoint,
				APIVersion: cfg.IMDSAPIVersion,
				ClientID:   cfg.MSIClientID,
			},
			RefreshInterval: cfg.TokenRefreshInterval(),
			Logger:          logger,
		})
		if err != nil {
			return nil, noop, err
		}
		store, err := azure.NewWithTokenCredential(cfg.AzureStorageAccount, provider, opts)
		if err != nil {
			provider.Stop()
			return nil, noop, &config.Error{Err: err}
		}
		return store, provider.Stop, nil
	case cfg.AzureStorageAccessKey != "":
		store, err := azure.NewWithSharedKey(cfg.AzureStorageAccount, string(cfg.AzureStorageAccessKey), opts)
		if err != nil {
			return nil, noop, &config.Error{Err: err}
		}
		return store, noop, nil
	default:
		store, err := azure.NewWithSAS(cfg.AzureStorageAccount, string(cfg.AzureStorageSASToken), opts)
		if err != nil {
			return nil, noop, &config.Error{Err: err}
		}
		return store, noop, nil
	}
}
