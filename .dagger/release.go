package main

import (
	"context"
	"fmt"
	"path"

	"dagger/tracenotes/internal/dagger"
)

// bucket holds the S3-compatible credentials release artifacts go to.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyID     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// withChecksums adds a SHA256SUMS file covering every binary in artifacts.
func withChecksums(ctx context.Context, artifacts *dagger.Directory) (*dagger.Directory, error) {
	sums, err := dag.Container().
		From("debian:bookworm-slim").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts").
		WithExec([]string{"sh", "-c", "find . -type f -name tracenotes | sort | xargs sha256sum"}).
		Stdout(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing checksums: %w", err)
	}
	return artifacts.WithNewFile("SHA256SUMS", sums), nil
}

// publish syncs artifacts to every prefix in the bucket.
func (b *bucket) publish(ctx context.Context, artifacts *dagger.Directory, prefixes ...string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket name: %w", err)
	}
	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket endpoint: %w", err)
	}

	aws := dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyID).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts")

	for _, prefix := range prefixes {
		dest := "s3://" + path.Join(name, prefix)
		if _, err := aws.WithExec([]string{"aws", "s3", "sync", ".", dest, "--endpoint-url", endpoint}).Sync(ctx); err != nil {
			return fmt.Errorf("uploading artifacts to %s: %w", prefix, err)
		}
	}
	return nil
}

// Release builds checksummed binaries for version and uploads them under
// the version and, when latest is set, under "latest".
func (t *Tracenotes) Release(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Also publish under "latest"
	// +optional
	latest bool,

	endpoint *dagger.Secret,
	bucketName *dagger.Secret,
	accessKeyID *dagger.Secret,
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	artifacts, err := withChecksums(ctx, t.BuildRelease(ctx, version, commit))
	if err != nil {
		return nil, err
	}

	prefixes := []string{version}
	if latest {
		prefixes = append(prefixes, "latest")
	}

	b := &bucket{endpoint: endpoint, name: bucketName, accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}
	return artifacts, b.publish(ctx, artifacts, prefixes...)
}

// Nightly builds and uploads binaries under "nightly".
func (t *Tracenotes) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	endpoint *dagger.Secret,
	bucketName *dagger.Secret,
	accessKeyID *dagger.Secret,
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	return t.Release(ctx, "nightly", commit, false, endpoint, bucketName, accessKeyID, secretAccessKey)
}
