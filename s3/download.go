/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
)

const uriScheme = "s3://"

// S3GetObjectAPI defines the interface for the GetObject function.
// We use this interface to test the function using a mocked service.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// IsURI reports whether the location names an s3 object.
func IsURI(location string) bool {
	return strings.HasPrefix(location, uriScheme)
}

// ParseURI splits s3://bucket/key into its bucket and key.
func ParseURI(uri string) (string, string, error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("%q is not an s3 uri", uri)
	}
	bucket, key, _ := strings.Cut(strings.TrimPrefix(uri, uriScheme), "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%q does not name an s3 object", uri)
	}
	return bucket, key, nil
}

// FetchTemplate downloads the object named by uri into dir and returns the
// local path. The object's base name is kept so its extension still selects
// the template format.
func FetchTemplate(ctx context.Context, api S3GetObjectAPI, uri string, fs afero.Fs, dir string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	out, err := api.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", uri, err)
	}
	defer out.Body.Close()

	target := filepath.Join(dir, path.Base(key))
	f, err := fs.Create(target)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, out.Body); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	return target, nil
}
