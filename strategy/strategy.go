// Package strategy implements the destination precheck and the pure
// decision tree that chooses among Skip, Property-Sync, Tag-Sync,
// Instant-Copy, and Multipart-Copy (C7, spec.md §4.7). It never mutates
// anything; Decide only inspects heads and tag sets and hands back the
// directives a single-shot copy_object call would need. Grounded on
// ais/cloud/aws.go's HeadObj/awsErrorToAISError pattern of classifying
// provider responses into typed outcomes before any write is attempted.
package strategy

import (
	"github.com/NVIDIA/s3copy/cmn"
	"github.com/NVIDIA/s3copy/planner"
	"github.com/NVIDIA/s3copy/store"
)

// Action is the outcome of the strategy selector.
type Action int

const (
	ActionSkip Action = iota
	ActionPropertySync
	ActionTagSync
	ActionInstantCopy
	ActionMultipartCopy
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "Skip"
	case ActionPropertySync:
		return "PropertySync"
	case ActionTagSync:
		return "TagSync"
	case ActionInstantCopy:
		return "InstantCopy"
	default:
		return "MultipartCopy"
	}
}

// Toggles mirrors CopyConfig's opt-out flags (spec.md §3) relevant to
// strategy selection.
type Toggles struct {
	SkipMetadata     bool
	SkipTags         bool
	SkipStorageClass bool
	ForceCopy        bool
	AutoEnabled      bool
}

// Decision is everything the lifecycle needs to carry out the chosen
// action without re-deriving it.
type Decision struct {
	Action     Action
	SourceHead *store.ObjectHead
	DestHead   *store.ObjectHead // nil if destination absent
	SourceTags store.TagSet
	TagsDiffer bool
	Directives store.CopyDirectives // populated for PropertySync/InstantCopy
}

// DirectiveBuilder builds the headers/tags/SSE/ACL/checksum directives a
// Property-Sync or Instant-Copy copy_object call applies. Supplied by the
// engine (which owns CopyConfig) so this package stays free of
// engine-level configuration concerns.
type DirectiveBuilder interface {
	Build(src *store.ObjectHead, srcTags store.TagSet, replaceTags bool) store.CopyDirectives
}

// Decide runs the full precheck described in spec.md §4.7.
//
// destHeadFn returns (nil, nil) when the destination is absent (NotFound
// recovered). destTagsFn/srcTagsFn return (nil, nil) when a tag set is
// absent (NotFound recovered); neither is called when tags are skipped.
func Decide(
	cfg Toggles,
	src *store.ObjectHead,
	destHeadFn func() (*store.ObjectHead, error),
	destTagsFn func() (store.TagSet, error),
	srcTagsFn func() (store.TagSet, error),
	directives DirectiveBuilder,
) (Decision, error) {
	if src.Size == 0 {
		return Decision{}, cmn.NewError(cmn.ErrEmptySource, nil)
	}

	var srcTags store.TagSet
	if !cfg.SkipTags {
		var err error
		srcTags, err = srcTagsFn()
		if err != nil {
			return Decision{}, cmn.Wrap(cmn.ErrTagFetchFailed, err, "get source tags")
		}
	}

	if cfg.ForceCopy {
		return finalize(cfg, src, nil, srcTags, directives)
	}

	destHead, err := destHeadFn()
	if err != nil {
		return Decision{}, cmn.Wrap(cmn.ErrDestinationHeadFailed, err, "head destination")
	}
	if destHead == nil {
		return finalize(cfg, src, nil, srcTags, directives)
	}

	if !dataMatches(src, destHead) {
		return finalize(cfg, src, destHead, srcTags, directives)
	}

	var destTags store.TagSet
	if !cfg.SkipTags {
		destTags, err = destTagsFn()
		if err != nil {
			return Decision{}, cmn.Wrap(cmn.ErrTagFetchFailed, err, "get destination tags")
		}
	}

	tagsMatch := cfg.SkipTags || srcTags.Equal(destTags)
	storageClassMatch := cfg.SkipStorageClass || src.StorageClass == destHead.StorageClass
	metadataMatch := cfg.SkipMetadata || src.Properties.Equal(destHead.Properties)

	if tagsMatch && storageClassMatch && metadataMatch {
		return Decision{Action: ActionSkip, SourceHead: src, DestHead: destHead, SourceTags: srcTags}, nil
	}

	tagsDiffer := !tagsMatch

	if src.Size <= planner.S3MaxSingleCopySize {
		return Decision{
			Action: ActionPropertySync, SourceHead: src, DestHead: destHead,
			SourceTags: srcTags, TagsDiffer: tagsDiffer,
			Directives: directives.Build(src, srcTags, tagsDiffer),
		}, nil
	}

	if tagsDiffer && storageClassMatch && metadataMatch {
		return Decision{
			Action: ActionTagSync, SourceHead: src, DestHead: destHead,
			SourceTags: srcTags, TagsDiffer: true,
		}, nil
	}

	// size > 5 GiB and metadata or storage class differ: full multipart copy.
	return finalize(cfg, src, destHead, srcTags, directives)
}

func finalize(cfg Toggles, src, destHead *store.ObjectHead, srcTags store.TagSet, directives DirectiveBuilder) (Decision, error) {
	if cfg.AutoEnabled && src.Size < planner.S3MaxSingleCopySize {
		return Decision{
			Action: ActionInstantCopy, SourceHead: src, DestHead: destHead, SourceTags: srcTags,
			Directives: directives.Build(src, srcTags, !cfg.SkipTags),
		}, nil
	}
	return Decision{Action: ActionMultipartCopy, SourceHead: src, DestHead: destHead, SourceTags: srcTags}, nil
}

func dataMatches(src, dest *store.ObjectHead) bool {
	return dest.Size == src.Size && etagMatches(src, dest)
}

func etagMatches(src, dest *store.ObjectHead) bool {
	if cmn.ETagEqual(src.ETag, dest.ETag) {
		return true
	}
	recorded, ok := dest.CustomMetadataGet(store.SourceETagMetadataKey)
	return ok && cmn.ETagEqual(recorded, src.ETag)
}
