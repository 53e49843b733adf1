package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/rangefetch/internal/utils"
)

func (d *S3Downloader) Get(ctx context.Context, link string, rng *utils.ByteRange) (*utils.Response, error) {
	bucket, key, err := parseS3URL(link)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		input.Range = aws.String(rng.Header())
	}
	out, err := d.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error downloading s3://%s/%s: %w", bucket, key, mapError("GetObject", err))
	}
	resp := &utils.Response{
		Body:          out.Body,
		ContentLength: -1,
		Partial:       rng != nil && out.ContentRange != nil,
	}
	if out.ContentLength != nil {
		resp.ContentLength = *out.ContentLength
	}
	return resp, nil
}
