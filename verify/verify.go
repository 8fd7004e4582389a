// Package verify implements the post-copy verifier (C8, spec.md §4.8): a
// mandatory size check plus an optional ETag or checksum-header comparison.
// Grounded on ais/cloud/aws.go's HeadObj, which this package re-invokes
// against both sides after a copy completes.
package verify

import (
	"context"

	"github.com/NVIDIA/s3copy/cmn"
	"github.com/NVIDIA/s3copy/store"
)

// Mode selects what the verifier compares beyond size.
type Mode int

const (
	Off Mode = iota
	Etag
	Checksum
)

func (m Mode) String() string {
	switch m {
	case Etag:
		return "Etag"
	case Checksum:
		return "Checksum"
	default:
		return "Off"
	}
}

// checksumPrecedence lists algorithms from most to least preferred, per
// spec.md §4.8 ("SHA256 > SHA1 > CRC32C > CRC32").
var checksumPrecedence = []store.ChecksumAlgorithm{
	store.ChecksumSHA256,
	store.ChecksumSHA1,
	store.ChecksumCRC32C,
	store.ChecksumCRC32,
}

// Run re-heads both objects and compares them according to mode. It is a
// no-op returning nil when mode is Off; callers are expected to
// skip invoking Run at all for dry runs, per spec.md §4.8 ("Runs iff
// !dry_run AND verify != Off") -- Run itself only knows about mode.
func Run(ctx context.Context, s store.ObjectStore, src, dst store.ObjectRef, mode Mode) error {
	if mode == Off {
		return nil
	}

	srcHead, err := s.Head(ctx, src)
	if err != nil {
		return cmn.Wrap(cmn.ErrVerificationFailed, err, "re-head source")
	}
	dstHead, err := s.Head(ctx, dst)
	if err != nil {
		return cmn.Wrap(cmn.ErrVerificationFailed, err, "re-head destination")
	}

	if srcHead.Size != dstHead.Size {
		return cmn.Wrap(cmn.ErrVerificationFailed, nil, "size mismatch: source=%d destination=%d", srcHead.Size, dstHead.Size)
	}

	switch mode {
	case Etag:
		return verifyEtag(srcHead, dstHead)
	case Checksum:
		return verifyChecksum(srcHead, dstHead)
	default:
		return nil
	}
}

func verifyEtag(src, dst *store.ObjectHead) error {
	if cmn.ETagEqual(src.ETag, dst.ETag) {
		return nil
	}
	if recorded, ok := dst.CustomMetadataGet(store.SourceETagMetadataKey); ok && cmn.ETagEqual(recorded, src.ETag) {
		return nil
	}
	return cmn.Wrap(cmn.ErrVerificationFailed, nil, "etag mismatch: source=%s destination=%s", src.ETag, dst.ETag)
}

func verifyChecksum(src, dst *store.ObjectHead) error {
	algo, srcVal, ok := firstChecksum(src)
	if !ok {
		return cmn.Wrap(cmn.ErrVerificationFailed, nil, "source exposes no checksum")
	}
	dstVal, ok := dst.Checksums[algo]
	if !ok {
		return cmn.Wrap(cmn.ErrVerificationFailed, nil, "destination exposes no %s checksum", algo)
	}
	if srcVal != dstVal {
		return cmn.Wrap(cmn.ErrVerificationFailed, nil, "%s checksum mismatch: source=%s destination=%s", algo, srcVal, dstVal)
	}
	return nil
}

// firstChecksum returns the highest-precedence checksum algorithm present
// on head, per spec.md §4.8 and property 8.
func firstChecksum(head *store.ObjectHead) (store.ChecksumAlgorithm, string, bool) {
	for _, algo := range checksumPrecedence {
		if v, ok := head.Checksums[algo]; ok {
			return algo, v, true
		}
	}
	return store.ChecksumUnspecified, "", false
}
