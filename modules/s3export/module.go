// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package s3export uploads upstream artifacts to an S3 bucket.
package s3export

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"
	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/metrics"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/specialistvlad/featuregrid/internal/registry"
	"golang.org/x/sync/errgroup"
)

// TypeName is the component type used in pipeline files.
const TypeName = "s3_export"

const defaultMaxRetries = 5

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Bucket          string `hcl:"bucket"`
	Prefix          string `hcl:"prefix,optional"`
	Region          string `hcl:"region,optional"`
	EndpointURL     string `hcl:"endpoint_url,optional"`
	AccessKeyID     string `hcl:"access_key_id,optional"`
	SecretAccessKey string `hcl:"secret_access_key,optional"`
	// Artifacts selects "component.artifact" pairs; empty means every
	// artifact of every upstream component.
	Artifacts  []string `hcl:"artifacts,optional"`
	MaxRetries int      `hcl:"max_retries,optional"`
}

// ObjectPutter is the subset of the S3 client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientFactory builds the S3 client for an input.
type ClientFactory func(ctx context.Context, input Input) (ObjectPutter, error)

// Component uploads the files behind the selected artifacts.
type Component struct {
	pipeline.Meta
	input      Input
	newClient  ClientFactory
	newBackOff func() backoff.BackOff
}

// NewComponent validates input. A nil factory means NewS3Client.
func NewComponent(meta pipeline.Meta, input Input, newClient ClientFactory) (*Component, error) {
	if input.Bucket == "" {
		return nil, fmt.Errorf("component '%s': bucket must not be empty", meta.Name)
	}
	if input.MaxRetries < 0 {
		return nil, fmt.Errorf("component '%s': max_retries must not be negative", meta.Name)
	}
	if input.MaxRetries == 0 {
		input.MaxRetries = defaultMaxRetries
	}
	input.Prefix = strings.Trim(input.Prefix, "/")
	for _, sel := range input.Artifacts {
		if _, _, ok := strings.Cut(sel, "."); !ok {
			return nil, fmt.Errorf("component '%s': artifact selector %q must be 'component.artifact'", meta.Name, sel)
		}
	}
	if newClient == nil {
		newClient = NewS3Client
	}
	return &Component{
		Meta:       meta,
		input:      input,
		newClient:  newClient,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}, nil
}

// NewS3Client loads the default AWS configuration, overriding region,
// static credentials and endpoint when the input sets them.
func NewS3Client(ctx context.Context, input Input) (ObjectPutter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if input.Region != "" {
		opts = append(opts, awsconfig.WithRegion(input.Region))
	}
	if input.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(input.AccessKeyID, input.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if input.EndpointURL != "" {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(input.EndpointURL)
			o.UsePathStyle = true
		}), nil
	}
	return s3.NewFromConfig(awsCfg), nil
}

type upload struct {
	output string
	file   string
	key    string
}

// Run uploads every selected artifact and returns one s3:// URI per artifact.
func (c *Component) Run(ctx context.Context, rc *pipeline.RunContext) (pipeline.Outputs, error) {
	logger := ctxlog.FromContext(ctx).With("bucket", c.input.Bucket)

	selected, err := c.selectArtifacts(rc)
	if err != nil {
		return nil, err
	}

	var uploads []upload
	outs := make(pipeline.Outputs, len(selected))
	for _, sel := range selected {
		keyPrefix := c.objectPrefix(rc, sel.component, sel.artifact)
		files, err := c.plan(sel.path, keyPrefix)
		if err != nil {
			return nil, err
		}
		for i := range files {
			files[i].output = sel.name()
		}
		uploads = append(uploads, files...)
		outs[sel.name()] = fmt.Sprintf("s3://%s/%s", c.input.Bucket, keyPrefix)
	}

	if len(uploads) == 0 {
		logger.Warn("Nothing to export.")
		return outs, nil
	}

	client, err := c.newClient(ctx, c.input)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	workers := rc.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for _, u := range uploads {
		g.Go(func() error {
			return c.put(gctx, client, u)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("Artifacts exported.", "artifacts", len(selected), "objects", len(uploads))
	return outs, nil
}

// put uploads one file, retrying transient failures with exponential backoff.
func (c *Component) put(ctx context.Context, client ObjectPutter, u upload) error {
	logger := ctxlog.FromContext(ctx)

	contentType := mime.TypeByExtension(filepath.Ext(u.file))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		f, err := os.Open(u.file)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to open '%s': %w", u.file, err))
		}
		defer f.Close()

		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.input.Bucket),
			Key:         aws.String(u.key),
			Body:        f,
			ContentType: aws.String(contentType),
		})
		if err != nil {
			logger.Warn("S3 upload attempt failed.", "key", u.key, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.input.MaxRetries)),
	)
	if err != nil {
		metrics.ExportUploads.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", u.output, c.input.Bucket, u.key, err)
	}
	metrics.ExportUploads.WithLabelValues("success").Inc()
	logger.Debug("Uploaded object.", "key", u.key)
	return nil
}

type selection struct {
	component string
	artifact  string
	path      string
}

func (s selection) name() string { return s.component + "." + s.artifact }

// selectArtifacts resolves the configured selectors, or every upstream
// artifact, in a stable order.
func (c *Component) selectArtifacts(rc *pipeline.RunContext) ([]selection, error) {
	var out []selection
	if len(c.input.Artifacts) == 0 {
		for id, outs := range rc.Inputs {
			for name, uri := range outs {
				out = append(out, selection{component: id, artifact: name, path: uri})
			}
		}
	} else {
		for _, sel := range c.input.Artifacts {
			id, name, _ := strings.Cut(sel, ".")
			uri, err := rc.Input(id, name)
			if err != nil {
				return nil, err
			}
			out = append(out, selection{component: id, artifact: name, path: uri})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name() < out[j].name() })

	for _, s := range out {
		if strings.Contains(s.path, "://") {
			return nil, fmt.Errorf("artifact %s is not a local path: %s", s.name(), s.path)
		}
	}
	return out, nil
}

func (c *Component) objectPrefix(rc *pipeline.RunContext, component, artifact string) string {
	parts := []string{rc.Pipeline, rc.RunID, component, artifact}
	if c.input.Prefix != "" {
		parts = append([]string{c.input.Prefix}, parts...)
	}
	return path.Join(parts...)
}

// plan lists the files behind root with their object keys. A file artifact
// becomes one object named after the file.
func (c *Component) plan(root, keyPrefix string) ([]upload, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact '%s': %w", root, err)
	}
	if !info.IsDir() {
		return []upload{{file: root, key: path.Join(keyPrefix, info.Name())}}, nil
	}

	var uploads []upload
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		uploads = append(uploads, upload{file: p, key: path.Join(keyPrefix, filepath.ToSlash(rel))})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact '%s': %w", root, err)
	}
	return uploads, nil
}

// Register registers the component type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterComponent(TypeName, &registry.RegisteredComponent{
		NewInput: func() any { return new(Input) },
		New: func(meta pipeline.Meta, _ *registry.Definition, input any) (pipeline.Component, error) {
			return NewComponent(meta, *input.(*Input), nil)
		},
	})
}
