package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/rangefetch/internal/utils"
)

// S3Downloader implements utils.Transport for s3://bucket/key URLs.
type S3Downloader struct {
	client *s3.Client
}

func New(ctx context.Context, opts Options) (*S3Downloader, error) {
	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &S3Downloader{client: client}, nil
}

func NewFromClient(client *s3.Client) *S3Downloader {
	return &S3Downloader{client: client}
}

func (d *S3Downloader) Head(ctx context.Context, link string) (*utils.ResourceInfo, error) {
	log := utils.GetLogger("s3")
	bucket, key, err := parseS3URL(link)
	if err != nil {
		return nil, err
	}
	headObj, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("error getting S3 object info: %w", mapError("HeadObject", err))
	}
	info := &utils.ResourceInfo{
		SupportsRange: true,
		FileName:      utils.FileNameFromURL(link),
	}
	if headObj.ContentLength != nil && *headObj.ContentLength > 0 {
		info.Size = *headObj.ContentLength
	}
	log.Debug().Str("op", "s3/probe").Msgf("Object s3://%s/%s has size %d", bucket, key, info.Size)
	return info, nil
}
