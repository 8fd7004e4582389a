// Package memstore is an in-memory store.ObjectStore used by the test
// suites for strategy, lifecycle, verify, and engine so they never touch
// the network. It mirrors the semantics of store/aws.go closely enough
// that behavior exercised against it generalizes to the real backend.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/NVIDIA/s3copy/store"
	"github.com/google/uuid"
)

type object struct {
	head store.ObjectHead
	tags store.TagSet
	data []byte // only length matters; bytes are never read by the engine
}

type upload struct {
	dst    store.ObjectRef
	parts  map[int]string
	dir    store.CopyDirectives
	srcKey string
}

// Store is a bucket-name-keyed, in-memory object store.
type Store struct {
	mu       sync.Mutex
	objects  map[string]*object // "bucket/key"
	regions  map[string]string
	uploads  map[string]*upload
	nextEtag int
	Calls    Calls

	// LastCompletedParts records the exact slice handed to
	// CompleteMultipartUpload on its most recent call, for tests that
	// assert on submission order (spec.md §8 property 2).
	LastCompletedParts []store.CompletedPart
	// AbortedUploadIDs records every upload id passed to
	// AbortMultipartUpload, in call order.
	AbortedUploadIDs []string
	// FailUploadPartCopyOn, if set, makes UploadPartCopy fail for the
	// given part number exactly once (tests S6: failure during upload).
	FailUploadPartCopyOn int
}

// Calls records invocation counts the test suite asserts against (e.g.
// "exactly one CopyObject", "zero PutObjectTagging").
type Calls struct {
	Head                    int
	GetTags                 int
	GetBucketRegion         int
	CopyObject              int
	PutObjectTagging        int
	CreateMultipartUpload   int
	UploadPartCopy          int
	CompleteMultipartUpload int
	AbortMultipartUpload    int
}

func New() *Store {
	return &Store{
		objects: make(map[string]*object),
		regions: make(map[string]string),
		uploads: make(map[string]*upload),
	}
}

func key(ref store.ObjectRef) string { return ref.Bucket + "/" + ref.Key }

// Put seeds an object directly, bypassing any copy semantics.
func (s *Store) Put(ref store.ObjectRef, head store.ObjectHead, tags store.TagSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key(ref)] = &object{head: head, tags: tags, data: make([]byte, head.Size)}
}

func (s *Store) SetRegion(bucket, region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[bucket] = region
}

func (s *Store) Head(_ context.Context, ref store.ObjectRef) (*store.ObjectHead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.Head++
	o, ok := s.objects[key(ref)]
	if !ok {
		return nil, &store.StoreError{Kind: store.ErrNotFound, Op: "HeadObject", Err: fmt.Errorf("%s not found", ref)}
	}
	h := o.head
	h.CustomMetadata = cloneMap(o.head.CustomMetadata)
	h.Checksums = cloneChecksums(o.head.Checksums)
	return &h, nil
}

func (s *Store) GetTags(_ context.Context, ref store.ObjectRef) (store.TagSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.GetTags++
	o, ok := s.objects[key(ref)]
	if !ok {
		return nil, &store.StoreError{Kind: store.ErrNotFound, Op: "GetObjectTagging", Err: fmt.Errorf("%s not found", ref)}
	}
	return o.tags, nil
}

func (s *Store) GetBucketRegion(_ context.Context, bucket string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.GetBucketRegion++
	if r, ok := s.regions[bucket]; ok {
		return r, nil
	}
	return "us-east-1", nil
}

func (s *Store) applyDirectives(dst *object, src *object, dir store.CopyDirectives) {
	if dir.MetadataDirective == store.DirectiveReplace {
		dst.head.Properties = dir.Properties
		dst.head.CustomMetadata = cloneMap(dir.CustomMetadata)
	} else {
		dst.head.Properties = src.head.Properties
		dst.head.CustomMetadata = cloneMap(src.head.CustomMetadata)
	}
	if dir.StorageClass != "" {
		dst.head.StorageClass = dir.StorageClass
	} else {
		dst.head.StorageClass = src.head.StorageClass
	}
	if dir.TaggingDirective == store.DirectiveReplace {
		dst.tags = dir.Tags
	} else {
		dst.tags = src.tags
	}
}

func (s *Store) CopyObject(_ context.Context, src, dst store.ObjectRef, dir store.CopyDirectives) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.CopyObject++
	so, ok := s.objects[key(src)]
	if !ok {
		return &store.StoreError{Kind: store.ErrNotFound, Op: "CopyObject", Err: fmt.Errorf("%s not found", src)}
	}
	do := &object{
		head: store.ObjectHead{Size: so.head.Size, ETag: s.newEtag()},
		data: make([]byte, so.head.Size),
	}
	s.applyDirectives(do, so, dir)
	s.objects[key(dst)] = do
	return nil
}

func (s *Store) PutObjectTagging(_ context.Context, dst store.ObjectRef, tags store.TagSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.PutObjectTagging++
	o, ok := s.objects[key(dst)]
	if !ok {
		return &store.StoreError{Kind: store.ErrNotFound, Op: "PutObjectTagging", Err: fmt.Errorf("%s not found", dst)}
	}
	o.tags = tags
	return nil
}

func (s *Store) CreateMultipartUpload(_ context.Context, dst store.ObjectRef, dir store.CopyDirectives) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.CreateMultipartUpload++
	id := uuid.NewString()
	s.uploads[id] = &upload{dst: dst, parts: make(map[int]string), dir: dir}
	return id, nil
}

func (s *Store) UploadPartCopy(_ context.Context, dst store.ObjectRef, uploadID string, partNumber int, src store.ObjectRef, rng store.ByteRange) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.UploadPartCopy++
	u, ok := s.uploads[uploadID]
	if !ok {
		return "", &store.StoreError{Kind: store.ErrNotFound, Op: "UploadPartCopy", Err: fmt.Errorf("no such upload %s", uploadID)}
	}
	if _, ok := s.objects[key(src)]; !ok {
		return "", &store.StoreError{Kind: store.ErrNotFound, Op: "UploadPartCopy", Err: fmt.Errorf("%s not found", src)}
	}
	if s.FailUploadPartCopyOn != 0 && s.FailUploadPartCopyOn == partNumber {
		s.FailUploadPartCopyOn = 0
		return "", &store.StoreError{Kind: store.ErrTransient, Op: "UploadPartCopy", Err: fmt.Errorf("injected failure on part %d", partNumber)}
	}
	etag := s.newEtag()
	u.parts[partNumber] = etag
	_ = dst
	return etag, nil
}

func (s *Store) CompleteMultipartUpload(_ context.Context, dst store.ObjectRef, uploadID string, parts []store.CompletedPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.CompleteMultipartUpload++
	u, ok := s.uploads[uploadID]
	if !ok {
		return &store.StoreError{Kind: store.ErrNotFound, Op: "CompleteMultipartUpload", Err: fmt.Errorf("no such upload %s", uploadID)}
	}
	sorted := append([]store.CompletedPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	s.LastCompletedParts = sorted

	var size int64
	so := s.objects[srcKeyForUpload(u)]
	do := &object{head: store.ObjectHead{ETag: s.newEtag()}}
	if so != nil {
		do.head.Size = so.head.Size
		size = so.head.Size
	}
	s.applyDirectivesFromUpload(do, so, u)
	do.data = make([]byte, size)
	s.objects[key(dst)] = do
	delete(s.uploads, uploadID)
	return nil
}

// srcKeyForUpload is a test-only convenience: memstore does not record the
// source ref from UploadPartCopy (the real store never needs to -- the
// lifecycle supplies src on every UploadPartCopy call), so it is set only
// by SetUploadSource. Without it, CompleteMultipartUpload builds the
// destination from the upload's directives alone and gives it size 0.
// Tests that need precise size semantics call SetUploadSource.
func srcKeyForUpload(u *upload) string { return u.srcKey }

func (s *Store) applyDirectivesFromUpload(dst *object, src *object, u *upload) {
	if src == nil {
		dst.head.CustomMetadata = cloneMap(u.dir.CustomMetadata)
		dst.head.Properties = u.dir.Properties
		dst.head.StorageClass = u.dir.StorageClass
		dst.tags = u.dir.Tags
		return
	}
	s.applyDirectives(dst, src, u.dir)
}

func (s *Store) AbortMultipartUpload(_ context.Context, dst store.ObjectRef, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls.AbortMultipartUpload++
	s.AbortedUploadIDs = append(s.AbortedUploadIDs, uploadID)
	delete(s.uploads, uploadID)
	_ = dst
	return nil
}

// SetUploadSource records which source object CompleteMultipartUpload
// should copy head/tag state from, mirroring the single-source-per-upload
// invariant the real lifecycle always holds.
func (s *Store) SetUploadSource(uploadID string, src store.ObjectRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.uploads[uploadID]; ok {
		u.srcKey = key(src)
	}
}

func (s *Store) newEtag() string {
	s.nextEtag++
	return fmt.Sprintf("\"mem-etag-%d\"", s.nextEtag)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneChecksums(m map[store.ChecksumAlgorithm]string) map[store.ChecksumAlgorithm]string {
	if m == nil {
		return nil
	}
	out := make(map[store.ChecksumAlgorithm]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ store.ObjectStore = (*Store)(nil)
