package filestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credlife/pkg/platform/circuit"

	dErrors "credlife/pkg/domain-errors"
)

type fakeS3 struct {
	objects map[string]*s3.HeadObjectOutput
	headErr error
	lastKey string
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	out, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return out, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.lastKey = aws.ToString(in.Key)
	return &v4.PresignedHTTPRequest{URL: "https://example.test/" + f.lastKey + "?sig=x", Method: "GET"}, nil
}

func newTestS3(f *fakeS3) *S3 {
	return newS3(Config{Bucket: "creds", PresignTTL: time.Minute}, f, f)
}

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://creds/owners/1/license.pdf")
	require.NoError(t, err)
	assert.Equal(t, "creds", bucket)
	assert.Equal(t, "owners/1/license.pdf", key)

	for _, bad := range []string{"https://creds/x", "s3://creds", "s3:///key", "::"} {
		_, _, err := ParseURI(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation), bad)
	}
}

func TestInspectReportsStoredAttributes(t *testing.T) {
	f := &fakeS3{objects: map[string]*s3.HeadObjectOutput{
		"a/license.pdf": {ContentLength: aws.Int64(2048), ContentType: aws.String("Application/PDF")},
	}}
	obj, err := newTestS3(f).Inspect(context.Background(), "s3://creds/a/license.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), obj.SizeBytes)
	assert.Equal(t, "application/pdf", obj.ContentType)
}

func TestInspectMissingObjectIsPolicyViolation(t *testing.T) {
	_, err := newTestS3(&fakeS3{}).Inspect(context.Background(), "s3://creds/missing.pdf")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
}

func TestInspectOtherBucketIsPolicyViolation(t *testing.T) {
	_, err := newTestS3(&fakeS3{}).Inspect(context.Background(), "s3://elsewhere/a.pdf")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
}

func TestInspectBackendErrorIsPersistence(t *testing.T) {
	_, err := newTestS3(&fakeS3{headErr: errors.New("timeout")}).Inspect(context.Background(), "s3://creds/a.pdf")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
}

func TestDownloadURL(t *testing.T) {
	f := &fakeS3{}
	url, expires, err := newTestS3(f).DownloadURL(context.Background(), "s3://creds/a/id.png")
	require.NoError(t, err)
	assert.Contains(t, url, "a/id.png")
	assert.Equal(t, "a/id.png", f.lastKey)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)
}

func TestGuardedFailsFastAfterRepeatedOutages(t *testing.T) {
	f := &fakeS3{headErr: errors.New("connection refused")}
	g := NewGuarded(newTestS3(f), circuit.New("s3", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)))
	ctx := context.Background()

	for range 2 {
		_, err := g.Inspect(ctx, "s3://creds/a.pdf")
		require.Error(t, err)
	}

	f.headErr = nil
	_, err := g.Inspect(ctx, "s3://creds/a.pdf")
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePersistence))

	_, _, err = g.DownloadURL(ctx, "s3://creds/a.pdf")
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Empty(t, f.lastKey)
}

func TestGuardedPolicyRejectionsKeepCircuitClosed(t *testing.T) {
	b := circuit.New("s3", circuit.WithFailureThreshold(1))
	g := NewGuarded(newTestS3(&fakeS3{}), b)

	_, err := g.Inspect(context.Background(), "s3://creds/missing.pdf")

	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
	assert.Equal(t, circuit.StateClosed, b.State())
}
