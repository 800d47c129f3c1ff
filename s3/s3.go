/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	econfig "github.com/redhatinsights/deid-export-go/config"
)

// NewClient builds an s3 client from the storage configuration. A configured
// endpoint points the client at an s3 compatible object store.
func NewClient(cfg *econfig.ExportConfig, log *zap.SugaredLogger) *s3.Client {
	scfg := cfg.StorageConfig

	endpoint := scfg.Endpoint
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		scheme := "http"
		if scfg.UseSSL {
			scheme = "https"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if endpoint != "" {
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: true,
			}, nil
		}

		// returning EndpointNotFoundError will allow the service to fallback to it's default resolution
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	creds := aws.CredentialsProviderFunc(func(c context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     scfg.AccessKey,
			SecretAccessKey: scfg.SecretKey,
		}, nil
	})

	s3cfg := aws.Config{
		Region:                      "us-east-1",
		Credentials:                 creds,
		EndpointResolverWithOptions: resolver,
	}

	client := s3.NewFromConfig(s3cfg, func(o *s3.Options) {
		o.UsePathStyle = endpoint != ""
	})
	log.Infow("s3 client configured", "endpoint", endpoint, "bucket", scfg.Bucket)
	return client
}
