package engine

import (
	"context"
	"testing"

	"github.com/NVIDIA/s3copy/planner"
	"github.com/NVIDIA/s3copy/store"
	"github.com/NVIDIA/s3copy/store/memstore"
	"github.com/NVIDIA/s3copy/strategy"
	"github.com/NVIDIA/s3copy/verify"
)

func baseConfig(src, dst store.ObjectRef) CopyConfig {
	return CopyConfig{
		Source:            src,
		Destination:       dst,
		ManualPartSizeMiB: 256,
		ConcurrencyCap:    8,
		Verify:            verify.Off,
	}
}

// S1: small object, auto mode, destination absent -> one copy_object call,
// no multipart.
func TestRunSmallAutoDestAbsentIsInstantCopy(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "s", Key: "o"}
	dst := store.ObjectRef{Bucket: "d", Key: "o"}
	ms.Put(src, store.ObjectHead{Size: planner.GiB, ETag: `"e"`}, nil)

	cfg := baseConfig(src, dst)
	cfg.AutoEnabled = true
	cfg.AutoProfile = planner.Balanced

	e, err := New(ms, cfg)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != strategy.ActionInstantCopy {
		t.Fatalf("expected InstantCopy, got %v", result.Action)
	}
	if ms.Calls.CopyObject != 1 {
		t.Fatalf("expected exactly one copy_object call, got %d", ms.Calls.CopyObject)
	}
	if ms.Calls.CreateMultipartUpload != 0 {
		t.Fatalf("expected no multipart initiate, got %d", ms.Calls.CreateMultipartUpload)
	}
}

// S3: source and destination fully identical -> zero writes.
func TestRunSkipOnIdentityPerformsZeroWrites(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "s", Key: "o"}
	dst := store.ObjectRef{Bucket: "d", Key: "o"}
	head := store.ObjectHead{Size: 10 * planner.GiB, ETag: `"same"`, StorageClass: "STANDARD"}
	tags := store.TagSet{{Key: "env", Value: "prod"}}
	ms.Put(src, head, tags)
	ms.Put(dst, head, tags)

	cfg := baseConfig(src, dst)
	e, err := New(ms, cfg)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != strategy.ActionSkip {
		t.Fatalf("expected Skip, got %v", result.Action)
	}
	if ms.Calls.CopyObject != 0 || ms.Calls.PutObjectTagging != 0 ||
		ms.Calls.CreateMultipartUpload != 0 {
		t.Fatalf("expected zero mutating calls, got calls=%+v", ms.Calls)
	}
}

// S4: size <= 5 GiB, data identical, metadata differs -> exactly one
// copy_object with REPLACE; no multipart.
func TestRunPropertySyncUnder5GiB(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "s", Key: "o"}
	dst := store.ObjectRef{Bucket: "d", Key: "o"}
	ms.Put(src, store.ObjectHead{
		Size: 2 * planner.GiB, ETag: `"same"`, StorageClass: "STANDARD",
		Properties: store.Properties{ContentType: "text/plain"},
	}, nil)
	ms.Put(dst, store.ObjectHead{
		Size: 2 * planner.GiB, ETag: `"same"`, StorageClass: "STANDARD",
		Properties: store.Properties{ContentType: "application/octet-stream"},
	}, nil)

	cfg := baseConfig(src, dst)
	e, err := New(ms, cfg)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != strategy.ActionPropertySync {
		t.Fatalf("expected PropertySync, got %v", result.Action)
	}
	if ms.Calls.CopyObject != 1 {
		t.Fatalf("expected exactly one copy_object, got %d", ms.Calls.CopyObject)
	}
	if ms.Calls.CreateMultipartUpload != 0 {
		t.Fatalf("expected no multipart path for a property sync, got %d", ms.Calls.CreateMultipartUpload)
	}
}

// S5: size > 5 GiB, data identical, only tags differ -> exactly one
// put_object_tagging; no multipart.
func TestRunTagSyncOver5GiB(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "s", Key: "o"}
	dst := store.ObjectRef{Bucket: "d", Key: "o"}
	head := store.ObjectHead{Size: 10 * planner.GiB, ETag: `"same"`, StorageClass: "STANDARD"}
	ms.Put(src, head, store.TagSet{{Key: "a", Value: "new"}})
	ms.Put(dst, head, store.TagSet{{Key: "a", Value: "old"}})

	cfg := baseConfig(src, dst)
	e, err := New(ms, cfg)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != strategy.ActionTagSync {
		t.Fatalf("expected TagSync, got %v", result.Action)
	}
	if ms.Calls.PutObjectTagging != 1 {
		t.Fatalf("expected exactly one put_object_tagging, got %d", ms.Calls.PutObjectTagging)
	}
	if ms.Calls.CopyObject != 0 || ms.Calls.CreateMultipartUpload != 0 {
		t.Fatalf("expected no copy_object or multipart calls, got calls=%+v", ms.Calls)
	}
}

// S6: a failure during upload_part_copy triggers abort and the primary
// error surfaces; no visible completed object at the destination.
func TestRunFailureDuringUploadAbortsAndLeavesNoObject(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "s", Key: "o"}
	dst := store.ObjectRef{Bucket: "d", Key: "o"}
	ms.Put(src, store.ObjectHead{Size: 20 * planner.MiB}, nil)
	ms.FailUploadPartCopyOn = 1

	cfg := baseConfig(src, dst)
	cfg.ManualPartSizeMiB = 5
	cfg.ConcurrencyCap = 1
	cfg.ForceCopy = true // bypass destination precheck to force the multipart path deterministically

	e, err := New(ms, cfg)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	_, err = e.Run(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected an error from the failed part copy")
	}
	if ms.Calls.AbortMultipartUpload != 1 {
		t.Fatalf("expected exactly one abort, got %d", ms.Calls.AbortMultipartUpload)
	}
	if _, ok, _ := headIfExists(ms, dst); ok {
		t.Fatalf("expected no visible destination object after abort")
	}
}

func headIfExists(ms *memstore.Store, ref store.ObjectRef) (*store.ObjectHead, bool, error) {
	h, err := ms.Head(context.Background(), ref)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return h, true, nil
}

func TestValidateRejectsOutOfRangeManualPartSize(t *testing.T) {
	cfg := baseConfig(store.ObjectRef{Bucket: "s", Key: "k"}, store.ObjectRef{Bucket: "d", Key: "k"})
	cfg.ManualPartSizeMiB = 4
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected LimitExceeded for a sub-5-MiB manual part size")
	}

	cfg.ManualPartSizeMiB = 5121
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected LimitExceeded for a manual part size above 5120 MiB")
	}
}

func TestValidateRejectsOutOfRangeConcurrency(t *testing.T) {
	cfg := baseConfig(store.ObjectRef{Bucket: "s", Key: "k"}, store.ObjectRef{Bucket: "d", Key: "k"})
	cfg.ConcurrencyCap = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected LimitExceeded for zero concurrency")
	}
	cfg.ConcurrencyCap = 1001
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected LimitExceeded for concurrency above 1000")
	}
}

func TestValidateAllowsAutoModeWithoutManualPartSize(t *testing.T) {
	cfg := baseConfig(store.ObjectRef{Bucket: "s", Key: "k"}, store.ObjectRef{Bucket: "d", Key: "k"})
	cfg.AutoEnabled = true
	cfg.ManualPartSizeMiB = 0 // irrelevant in auto mode
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
