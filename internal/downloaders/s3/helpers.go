package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/rangefetch/internal/utils"
)

type Options struct {
	Profile   string
	Region    string
	Endpoint  string
	PathStyle bool
}

func newS3Client(ctx context.Context, opts Options) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
		// the engine owns retries
		o.RetryMaxAttempts = 1
	}), nil
}

func parseS3URL(link string) (string, string, error) {
	rest, ok := strings.CutPrefix(link, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, link)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: expected s3://bucket/key, got %s", utils.ErrInvalidResourceURL, link)
	}
	return bucket, key, nil
}

// mapError turns SDK response errors into utils.StatusError so the scheduler
// can classify them like plain HTTP failures.
func mapError(op string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("%w: %v", &utils.StatusError{Op: op, Code: respErr.HTTPStatusCode()}, err)
	}
	return err
}
