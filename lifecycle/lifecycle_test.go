package lifecycle

import (
	"context"
	"testing"

	"github.com/NVIDIA/s3copy/planner"
	"github.com/NVIDIA/s3copy/progress"
	"github.com/NVIDIA/s3copy/store"
	"github.com/NVIDIA/s3copy/store/memstore"
)

type fakeBuilder struct{}

func (fakeBuilder) Build(src *store.ObjectHead, srcTags store.TagSet) store.CopyDirectives {
	return store.CopyDirectives{
		MetadataDirective: store.DirectiveReplace,
		TaggingDirective:  store.DirectiveReplace,
		Properties:        src.Properties,
		Tags:              srcTags,
	}
}

func seedSource(ms *memstore.Store, ref store.ObjectRef, size int64) {
	ms.Put(ref, store.ObjectHead{Size: size, ETag: `"src-etag"`}, nil)
}

// S2-shaped: manual mode, fixed part size and concurrency, no probe or
// adaptation, final submission ordered ascending 1..N (property 2).
func TestRunManualModeSubmitsPartsAscending(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "srcbkt", Key: "obj"}
	dst := store.ObjectRef{Bucket: "dstbkt", Key: "obj"}
	const size = 10 * planner.MiB
	seedSource(ms, src, size)

	p := Params{
		Source: src, Destination: dst,
		SourceHead:  &store.ObjectHead{Size: size, ETag: `"src-etag"`},
		PartSize:    3 * planner.MiB,
		Concurrency: 4,
		Auto:        false,
	}
	prog := progress.NewState(int(planner.ExpectedPartCount(size, p.PartSize)), size)

	result, err := Run(context.Background(), ms, p, fakeBuilder{}, prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ms.LastCompletedParts) == 0 {
		t.Fatalf("expected a non-empty final submission")
	}
	for i, part := range ms.LastCompletedParts {
		if part.PartNumber != i+1 {
			t.Fatalf("expected ascending 1..N part numbers, got %d at index %d", part.PartNumber, i)
		}
	}
	if ms.Calls.CompleteMultipartUpload != 1 || ms.Calls.AbortMultipartUpload != 0 {
		t.Fatalf("expected exactly one complete and zero aborts, got complete=%d abort=%d",
			ms.Calls.CompleteMultipartUpload, ms.Calls.AbortMultipartUpload)
	}
	if result.UploadID == "" {
		t.Fatalf("expected a non-empty upload id")
	}
	if prog.CopiedBytes() != size {
		t.Fatalf("expected progress to reach full size %d, got %d", size, prog.CopiedBytes())
	}
}

// Property 3: exactly one Completed or Aborted terminal transition per
// OpenedUpload.
func TestRunTerminalizesExactlyOnce(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "b", Key: "s"}
	dst := store.ObjectRef{Bucket: "b", Key: "d"}
	const size = 5 * planner.MiB
	seedSource(ms, src, size)

	p := Params{
		Source: src, Destination: dst,
		SourceHead:  &store.ObjectHead{Size: size},
		PartSize:    2 * planner.MiB,
		Concurrency: 2,
	}
	if _, err := Run(context.Background(), ms, p, fakeBuilder{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	terminal := ms.Calls.CompleteMultipartUpload + ms.Calls.AbortMultipartUpload
	if terminal != 1 {
		t.Fatalf("expected exactly one terminal transition, got %d", terminal)
	}
}

// S6: a failure during upload_part_copy triggers abort_multipart_upload for
// that upload id and the primary error is surfaced.
func TestRunAbortsOnPartFailure(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "b", Key: "s"}
	dst := store.ObjectRef{Bucket: "b", Key: "d"}
	const size = 10 * planner.MiB
	seedSource(ms, src, size)
	ms.FailUploadPartCopyOn = 2

	p := Params{
		Source: src, Destination: dst,
		SourceHead:  &store.ObjectHead{Size: size},
		PartSize:    3 * planner.MiB,
		Concurrency: 1, // force sequential dispatch so part 2 fails deterministically
	}
	_, err := Run(context.Background(), ms, p, fakeBuilder{}, nil)
	if err == nil {
		t.Fatalf("expected an error when a part copy fails")
	}
	if ms.Calls.AbortMultipartUpload != 1 {
		t.Fatalf("expected exactly one abort call, got %d", ms.Calls.AbortMultipartUpload)
	}
	if ms.Calls.CompleteMultipartUpload != 0 {
		t.Fatalf("expected no complete call on failure, got %d", ms.Calls.CompleteMultipartUpload)
	}
	if len(ms.AbortedUploadIDs) != 1 {
		t.Fatalf("expected one aborted upload id recorded, got %d", len(ms.AbortedUploadIDs))
	}
}

// Dry-run bypasses every store write and uses the literal synthetic upload
// id, per spec.md §4.6.
func TestRunDryRunBypassesStoreWrites(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "b", Key: "s"}
	dst := store.ObjectRef{Bucket: "b", Key: "d"}
	const size = 8 * planner.MiB

	p := Params{
		Source: src, Destination: dst,
		SourceHead:  &store.ObjectHead{Size: size},
		PartSize:    3 * planner.MiB,
		Concurrency: 4,
		DryRun:      true,
	}
	result, err := Run(context.Background(), ms, p, fakeBuilder{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.UploadID != DryRunUploadID {
		t.Fatalf("expected synthetic upload id %q, got %q", DryRunUploadID, result.UploadID)
	}
	if ms.Calls.CreateMultipartUpload != 0 || ms.Calls.UploadPartCopy != 0 ||
		ms.Calls.CompleteMultipartUpload != 0 || ms.Calls.AbortMultipartUpload != 0 {
		t.Fatalf("dry run must not touch the store, got calls=%+v", ms.Calls)
	}
	if len(result.CompletedParts) == 0 {
		t.Fatalf("expected synthetic completed parts")
	}
}

// Auto mode: the probe runs first, tunes the part size, and the window loop
// covers the remainder; total scheduled bytes must equal the source size
// and concurrency must respect MaxConcurrency.
func TestRunAutoModeCoversFullSize(t *testing.T) {
	ms := memstore.New()
	src := store.ObjectRef{Bucket: "b", Key: "s"}
	dst := store.ObjectRef{Bucket: "b", Key: "d"}
	const size = 50 * planner.MiB
	seedSource(ms, src, size)

	p := Params{
		Source: src, Destination: dst,
		SourceHead:     &store.ObjectHead{Size: size},
		PartSize:       5 * planner.MiB,
		Concurrency:    4,
		Auto:           true,
		Profile:        planner.Balanced,
		MaxConcurrency: 8,
		ProbePartCount: 2,
	}
	prog := progress.NewState(int(planner.ExpectedPartCount(size, p.PartSize)), size)
	_, err := Run(context.Background(), ms, p, fakeBuilder{}, prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog.CopiedBytes() != size {
		t.Fatalf("expected full size covered, got %d of %d", prog.CopiedBytes(), size)
	}
	for i, part := range ms.LastCompletedParts {
		if part.PartNumber != i+1 {
			t.Fatalf("expected ascending part numbers even in auto mode, got %d at index %d", part.PartNumber, i)
		}
	}
}
