package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Client wraps the bucket holding every document the service stores:
// reports, pareceres, petitions, contracts and chat attachments. Objects are
// private; reads go through short-lived signed URLs only.
type Client struct {
	s3        *s3.S3
	bucket    string
	signedTTL time.Duration
}

func NewClient(region, bucket string, signedTTL time.Duration) (*Client, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session failed: %w", err)
	}
	if signedTTL <= 0 {
		signedTTL = 15 * time.Minute
	}
	return &Client{s3: s3.New(sess), bucket: bucket, signedTTL: signedTTL}, nil
}

// Upload stores the object and returns its key. The key, not a URL, is what
// gets persisted on records; URLs are minted per read.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := c.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %q failed: %w", key, err)
	}
	return key, nil
}

// SignedURL mints a presigned GET for one object. Expiry is short: links are
// minted on each document open, never stored.
func (c *Client) SignedURL(key string) (string, error) {
	req, _ := c.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(c.signedTTL)
	if err != nil {
		return "", fmt.Errorf("presign %q failed: %w", key, err)
	}
	return url, nil
}

// Delete removes an object. Used when a draft record is purged.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %q failed: %w", key, err)
	}
	return nil
}
