package store

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/golang/glog"
)

// SourceETagMetadataKey is the sole durable reconciliation marker the engine
// writes on every destination object: the quote-stripped source ETag.
const SourceETagMetadataKey = "source-etag"

// AWSConfig selects the known region(s) and credential profile the S3
// client uses. Credential acquisition itself, HTTP-client tuning, and
// endpoint selection beyond region are out of the engine's scope
// (spec.md §1); AWSConfig is the pre-built capability handle the engine is
// handed. BucketRegions may pin a subset of buckets to a known region
// (e.g. the source and destination bucket of the current copy); any bucket
// absent from it is resolved lazily via GetBucketLocation, matching
// aistore's ais/cloud/aws.go newS3Client fallback.
type AWSConfig struct {
	BucketRegions map[string]string
	Profile       string
}

// awsStore implements store.ObjectStore against AWS S3 using aws-sdk-go v1,
// grounded on aistore's ais/cloud/aws.go session-and-region pattern: one
// client per resolved bucket region, created lazily and cached, never
// recreated per call.
type awsStore struct {
	sess    *session.Session
	cfg     AWSConfig
	mu      sync.Mutex
	clients map[string]*s3.S3 // keyed by bucket
}

func NewAWS(cfg AWSConfig) (ObjectStore, error) {
	opts := session.Options{SharedConfigState: session.SharedConfigEnable}
	if cfg.Profile != "" {
		opts.Profile = cfg.Profile
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, err
	}
	return &awsStore{sess: sess, cfg: cfg, clients: make(map[string]*s3.S3)}, nil
}

// clientFor returns the S3 client for bucket's region, resolving and
// caching it on first use via GetBucketLocation when the caller has not
// pinned a region for that bucket in AWSConfig.BucketRegions.
func (a *awsStore) clientFor(ctx context.Context, bucket string) (*s3.S3, error) {
	a.mu.Lock()
	if svc, ok := a.clients[bucket]; ok {
		a.mu.Unlock()
		return svc, nil
	}
	a.mu.Unlock()

	region := a.cfg.BucketRegions[bucket]
	if region == "" {
		resolved, err := a.GetBucketRegion(ctx, bucket)
		if err != nil {
			// Fall back to the default-region client; HeadObject/etc. will
			// surface a clearer error if the bucket truly cannot be reached.
			glog.Warningf("[s3copy] could not resolve region for bucket %s: %v", bucket, err)
		} else {
			region = resolved
		}
	}
	if region == "" {
		region = endpoints.UsEast1RegionID
	}

	svc := s3.New(a.sess, &aws.Config{Region: aws.String(region)})
	a.mu.Lock()
	a.clients[bucket] = svc
	a.mu.Unlock()
	return svc, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		kind := ErrOther
		switch reqErr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound", "NoSuchTagSet", "NoSuchUpload":
			kind = ErrNotFound
		case "AccessDenied", "Forbidden":
			kind = ErrAccessDenied
		default:
			switch reqErr.StatusCode() {
			case http.StatusNotFound:
				kind = ErrNotFound
			case http.StatusForbidden:
				kind = ErrAccessDenied
			case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
				kind = ErrTransient
			}
		}
		return &StoreError{Kind: kind, Op: reqErr.Code(), Err: reqErr}
	}
	return &StoreError{Kind: ErrOther, Op: "aws", Err: err}
}

func (a *awsStore) Head(ctx context.Context, ref ObjectRef) (*ObjectHead, error) {
	svc, err := a.clientFor(ctx, ref.Bucket)
	if err != nil {
		return nil, err
	}
	out, err := svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, classify(err)
	}
	return headFromOutput(out), nil
}

func headFromOutput(out *s3.HeadObjectOutput) *ObjectHead {
	h := &ObjectHead{
		Size:           aws.Int64Value(out.ContentLength),
		ETag:           aws.StringValue(out.ETag),
		StorageClass:   aws.StringValue(out.StorageClass),
		CustomMetadata: make(map[string]string, len(out.Metadata)),
		Checksums:      make(map[ChecksumAlgorithm]string),
		Properties: Properties{
			CacheControl:            aws.StringValue(out.CacheControl),
			ContentType:             aws.StringValue(out.ContentType),
			ContentDisposition:      aws.StringValue(out.ContentDisposition),
			ContentEncoding:         aws.StringValue(out.ContentEncoding),
			ContentLanguage:         aws.StringValue(out.ContentLanguage),
			WebsiteRedirectLocation: aws.StringValue(out.WebsiteRedirectLocation),
			Expires:                 parseExpires(out.Expires),
		},
	}
	for k, v := range out.Metadata {
		h.CustomMetadata[k] = aws.StringValue(v)
	}
	if v := aws.StringValue(out.ChecksumCRC32); v != "" {
		h.Checksums[ChecksumCRC32] = v
	}
	if v := aws.StringValue(out.ChecksumCRC32C); v != "" {
		h.Checksums[ChecksumCRC32C] = v
	}
	if v := aws.StringValue(out.ChecksumSHA1); v != "" {
		h.Checksums[ChecksumSHA1] = v
	}
	if v := aws.StringValue(out.ChecksumSHA256); v != "" {
		h.Checksums[ChecksumSHA256] = v
	}
	return h
}

func parseExpires(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC1123, *s); err == nil {
		return &t
	}
	return nil
}

func (a *awsStore) GetTags(ctx context.Context, ref ObjectRef) (TagSet, error) {
	svc, err := a.clientFor(ctx, ref.Bucket)
	if err != nil {
		return nil, err
	}
	out, err := svc.GetObjectTaggingWithContext(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, classify(err)
	}
	ts := make(TagSet, 0, len(out.TagSet))
	for _, t := range out.TagSet {
		ts = append(ts, Tag{Key: aws.StringValue(t.Key), Value: aws.StringValue(t.Value)})
	}
	return ts, nil
}

// GetBucketRegion resolves constraint->region per spec.md §4.10: empty
// constraint is us-east-1, legacy "EU" is eu-west-1.
func (a *awsStore) GetBucketRegion(ctx context.Context, bucket string) (string, error) {
	svc := s3.New(a.sess, &aws.Config{Region: aws.String(endpoints.UsEast1RegionID)})
	out, err := svc.GetBucketLocationWithContext(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
	if err != nil {
		return "", classify(err)
	}
	region := aws.StringValue(out.LocationConstraint)
	switch region {
	case "":
		return endpoints.UsEast1RegionID, nil
	case "EU":
		return "eu-west-1", nil
	default:
		return region, nil
	}
}

func applyDirectives(input *s3.CreateMultipartUploadInput, dir CopyDirectives) {
	if dir.StorageClass != "" {
		input.StorageClass = aws.String(dir.StorageClass)
	}
	if dir.ACL != "" {
		input.ACL = aws.String(dir.ACL)
	}
	if dir.SSE != nil {
		input.ServerSideEncryption = aws.String(dir.SSE.Algorithm)
		if dir.SSE.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(dir.SSE.KMSKeyID)
		}
	}
	if dir.ChecksumAlgorithm != ChecksumUnspecified {
		input.ChecksumAlgorithm = aws.String(dir.ChecksumAlgorithm.String())
	}
	if len(dir.CustomMetadata) > 0 {
		md := make(map[string]*string, len(dir.CustomMetadata))
		for k, v := range dir.CustomMetadata {
			md[k] = aws.String(v)
		}
		input.Metadata = md
	}
	input.CacheControl = optionalString(dir.Properties.CacheControl)
	input.ContentType = optionalString(dir.Properties.ContentType)
	input.ContentDisposition = optionalString(dir.Properties.ContentDisposition)
	input.ContentEncoding = optionalString(dir.Properties.ContentEncoding)
	input.ContentLanguage = optionalString(dir.Properties.ContentLanguage)
	input.WebsiteRedirectLocation = optionalString(dir.Properties.WebsiteRedirectLocation)
	if len(dir.Tags) > 0 {
		input.Tagging = aws.String(dir.Tags.Encode())
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func (a *awsStore) CreateMultipartUpload(ctx context.Context, dst ObjectRef, dir CopyDirectives) (string, error) {
	svc, err := a.clientFor(ctx, dst.Bucket)
	if err != nil {
		return "", err
	}
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(dst.Bucket),
		Key:    aws.String(dst.Key),
	}
	applyDirectives(input, dir)
	out, err := svc.CreateMultipartUploadWithContext(ctx, input)
	if err != nil {
		return "", classify(err)
	}
	if glog.V(2) {
		glog.Infof("[s3copy] initiated multipart upload %s for %s", aws.StringValue(out.UploadId), dst)
	}
	return aws.StringValue(out.UploadId), nil
}

func (a *awsStore) UploadPartCopy(ctx context.Context, dst ObjectRef, uploadID string, partNumber int, src ObjectRef, rng ByteRange) (string, error) {
	svc, err := a.clientFor(ctx, dst.Bucket)
	if err != nil {
		return "", err
	}
	out, err := svc.UploadPartCopyWithContext(ctx, &s3.UploadPartCopyInput{
		Bucket:          aws.String(dst.Bucket),
		Key:             aws.String(dst.Key),
		UploadId:        aws.String(uploadID),
		PartNumber:      aws.Int64(int64(partNumber)),
		CopySource:      aws.String(src.Bucket + "/" + src.Key),
		CopySourceRange: aws.String("bytes=" + strconv.FormatInt(rng.Start, 10) + "-" + strconv.FormatInt(rng.End, 10)),
	})
	if err != nil {
		return "", classify(err)
	}
	if out.CopyPartResult == nil {
		return "", &StoreError{Kind: ErrOther, Op: "UploadPartCopy", Err: errNoCopyResult}
	}
	return aws.StringValue(out.CopyPartResult.ETag), nil
}

var errNoCopyResult = &emptyResultError{}

type emptyResultError struct{}

func (*emptyResultError) Error() string { return "upload part copy returned no result" }

func (a *awsStore) CompleteMultipartUpload(ctx context.Context, dst ObjectRef, uploadID string, parts []CompletedPart) error {
	svc, err := a.clientFor(ctx, dst.Bucket)
	if err != nil {
		return err
	}
	completed := make([]*s3.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = &s3.CompletedPart{
			PartNumber: aws.Int64(int64(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		}
	}
	_, err = svc.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(dst.Bucket),
		Key:             aws.String(dst.Key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (a *awsStore) AbortMultipartUpload(ctx context.Context, dst ObjectRef, uploadID string) error {
	svc, err := a.clientFor(ctx, dst.Bucket)
	if err != nil {
		return err
	}
	_, err = svc.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(dst.Bucket),
		Key:      aws.String(dst.Key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (a *awsStore) CopyObject(ctx context.Context, src, dst ObjectRef, dir CopyDirectives) error {
	svc, err := a.clientFor(ctx, dst.Bucket)
	if err != nil {
		return err
	}
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(src.Bucket + "/" + src.Key),
	}
	if dir.MetadataDirective == DirectiveReplace {
		input.MetadataDirective = aws.String(s3.MetadataDirectiveReplace)
	} else {
		input.MetadataDirective = aws.String(s3.MetadataDirectiveCopy)
	}
	if dir.TaggingDirective == DirectiveReplace {
		input.TaggingDirective = aws.String(s3.TaggingDirectiveReplace)
		if len(dir.Tags) > 0 {
			input.Tagging = aws.String(dir.Tags.Encode())
		}
	} else {
		input.TaggingDirective = aws.String(s3.TaggingDirectiveCopy)
	}
	if dir.StorageClass != "" {
		input.StorageClass = aws.String(dir.StorageClass)
	}
	if dir.ACL != "" {
		input.ACL = aws.String(dir.ACL)
	}
	if dir.SSE != nil {
		input.ServerSideEncryption = aws.String(dir.SSE.Algorithm)
		if dir.SSE.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(dir.SSE.KMSKeyID)
		}
	}
	if dir.ChecksumAlgorithm != ChecksumUnspecified {
		input.ChecksumAlgorithm = aws.String(dir.ChecksumAlgorithm.String())
	}
	if len(dir.CustomMetadata) > 0 {
		md := make(map[string]*string, len(dir.CustomMetadata))
		for k, v := range dir.CustomMetadata {
			md[k] = aws.String(v)
		}
		input.Metadata = md
	}
	input.CacheControl = optionalString(dir.Properties.CacheControl)
	input.ContentType = optionalString(dir.Properties.ContentType)
	input.ContentDisposition = optionalString(dir.Properties.ContentDisposition)
	input.ContentEncoding = optionalString(dir.Properties.ContentEncoding)
	input.ContentLanguage = optionalString(dir.Properties.ContentLanguage)
	input.WebsiteRedirectLocation = optionalString(dir.Properties.WebsiteRedirectLocation)

	_, err = svc.CopyObjectWithContext(ctx, input)
	if err != nil {
		return classify(err)
	}
	if glog.V(2) {
		glog.Infof("[s3copy] copy_object %s -> %s", src, dst)
	}
	return nil
}

func (a *awsStore) PutObjectTagging(ctx context.Context, dst ObjectRef, tags TagSet) error {
	svc, err := a.clientFor(ctx, dst.Bucket)
	if err != nil {
		return err
	}
	tagging := make([]*s3.Tag, len(tags))
	for i, t := range tags {
		tagging[i] = &s3.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)}
	}
	_, err = svc.PutObjectTaggingWithContext(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(dst.Bucket),
		Key:     aws.String(dst.Key),
		Tagging: &s3.Tagging{TagSet: tagging},
	})
	if err != nil {
		return classify(err)
	}
	return nil
}
