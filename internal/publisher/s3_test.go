package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var errPartRefused = errors.New("part refused")

// stubS3 records client calls and can refuse one part upload.
type stubS3 struct {
	putKeys  []string
	putSizes []int

	created        int
	partSizes      []int
	aborted        int
	completed      int
	completedParts int
	failPart       int32 // part number to refuse; 0 never fails
}

func (s *stubS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.putKeys = append(s.putKeys, aws.ToString(in.Key))
	s.putSizes = append(s.putSizes, len(body))
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	s.created++
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (s *stubS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	part := aws.ToInt32(in.PartNumber)
	if s.failPart != 0 && part == s.failPart {
		return nil, errPartRefused
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.partSizes = append(s.partSizes, len(body))
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", part))}, nil
}

func (s *stubS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	s.aborted++
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (s *stubS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	s.completed++
	s.completedParts = len(in.MultipartUpload.Parts)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func TestS3SinkPutSmall(t *testing.T) {
	stub := &stubS3{}
	sink := &S3Sink{client: stub}

	data := bytes.Repeat([]byte("a"), 1024)
	err := sink.Put(context.Background(), "bucket", "small.zip", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if stub.created != 0 {
		t.Error("small upload must not go multipart")
	}
	if len(stub.putKeys) != 1 || stub.putKeys[0] != "small.zip" {
		t.Errorf("unexpected PutObject calls: %v", stub.putKeys)
	}
	if stub.putSizes[0] != len(data) {
		t.Errorf("uploaded %d bytes, want %d", stub.putSizes[0], len(data))
	}
}

func TestS3SinkPutMultipart(t *testing.T) {
	stub := &stubS3{}
	sink := &S3Sink{client: stub}

	// 12 MiB splits into 5 + 5 + 2.
	data := bytes.Repeat([]byte("b"), 12*1024*1024)
	err := sink.Put(context.Background(), "bucket", "big.zip", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if stub.created != 1 {
		t.Fatalf("expected one multipart upload, got %d", stub.created)
	}
	if len(stub.putKeys) != 0 {
		t.Error("multipart upload must not also PutObject")
	}

	wantParts := []int{partSize, partSize, 2 * 1024 * 1024}
	if len(stub.partSizes) != len(wantParts) {
		t.Fatalf("expected %d parts, got %d (%v)", len(wantParts), len(stub.partSizes), stub.partSizes)
	}
	for i, want := range wantParts {
		if stub.partSizes[i] != want {
			t.Errorf("part %d size = %d, want %d", i+1, stub.partSizes[i], want)
		}
	}

	if stub.completed != 1 || stub.completedParts != 3 {
		t.Errorf("expected completion with 3 parts, got completed=%d parts=%d", stub.completed, stub.completedParts)
	}
	if stub.aborted != 0 {
		t.Error("successful upload must not abort")
	}
}

func TestS3SinkPutMultipartExactMultiple(t *testing.T) {
	stub := &stubS3{}
	sink := &S3Sink{client: stub}

	data := bytes.Repeat([]byte("c"), 2*partSize)
	err := sink.Put(context.Background(), "bucket", "even.zip", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if len(stub.partSizes) != 2 {
		t.Fatalf("expected 2 parts, got %v", stub.partSizes)
	}
	if stub.completedParts != 2 {
		t.Errorf("expected completion with 2 parts, got %d", stub.completedParts)
	}
}

func TestS3SinkPutMultipartAbortsOnPartFailure(t *testing.T) {
	stub := &stubS3{failPart: 2}
	sink := &S3Sink{client: stub}

	data := bytes.Repeat([]byte("d"), 12*1024*1024)
	err := sink.Put(context.Background(), "bucket", "big.zip", bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, errPartRefused) {
		t.Fatalf("expected part failure, got %v", err)
	}

	if stub.aborted != 1 {
		t.Errorf("expected the multipart upload to be aborted, got %d aborts", stub.aborted)
	}
	if stub.completed != 0 {
		t.Error("failed upload must not complete")
	}
	if len(stub.partSizes) != 1 {
		t.Errorf("expected only the first part uploaded, got %v", stub.partSizes)
	}
}
