// Package engine wires C1-C10 together into the single entry point an
// external caller (the CLI, or any other driver) uses: validate a
// CopyConfig, run the strategy selector, and either finish in one request
// or drive the full multipart lifecycle, then verify. Grounded on this
// codebase's xaction/registry.go style of a single "run one operation
// start-to-finish, return one error" entry point, generalized from an
// AIStore xaction to a single object copy.
package engine

import (
	"context"
	"strings"

	"github.com/golang/glog"

	"github.com/NVIDIA/s3copy/cmn"
	"github.com/NVIDIA/s3copy/lifecycle"
	"github.com/NVIDIA/s3copy/planner"
	"github.com/NVIDIA/s3copy/progress"
	"github.com/NVIDIA/s3copy/store"
	"github.com/NVIDIA/s3copy/strategy"
	"github.com/NVIDIA/s3copy/verify"
)

const (
	minManualPartSizeMiB = 5
	maxManualPartSizeMiB = 5120
	minConcurrency       = 1
	maxConcurrency       = 1000
)

// CopyConfig is the immutable configuration an Engine is constructed with,
// per spec.md §3 and §6. It is the caller's job to have already validated
// and populated every field (argument parsing and defaulting are out of
// scope here, per spec.md §1).
type CopyConfig struct {
	Source      store.ObjectRef
	Destination store.ObjectRef

	// ManualPartSizeMiB is the part size used when AutoEnabled is false;
	// constrained to [5, 5120] MiB. The multipart lifecycle raises it when
	// the object would otherwise need more than 10,000 parts.
	ManualPartSizeMiB int
	// ConcurrencyCap is the hard ceiling on in-flight requests in both
	// modes; constrained to [1, 1000].
	ConcurrencyCap int

	AutoEnabled bool
	AutoProfile planner.Profile

	SkipMetadata     bool
	SkipTags         bool
	SkipStorageClass bool
	SkipACL          bool
	ForceCopy        bool
	DryRun           bool
	Quiet            bool

	StorageClassOverride string
	ChecksumAlgorithm    store.ChecksumAlgorithm
	SSE                  *store.SSE
	FullControlACL       bool

	Verify verify.Mode

	// SameRegion is the single cost-context query the planner consumes
	// (spec.md §1, §3 CostContext); the caller resolves it (e.g. via
	// GetBucketRegion on both sides) before constructing CopyConfig.
	SameRegion bool
}

// Validate enforces the configuration-time limits spec.md §7 assigns to
// LimitExceeded, raised by the caller before construction.
func (c CopyConfig) Validate() error {
	if !c.AutoEnabled {
		if c.ManualPartSizeMiB < minManualPartSizeMiB || c.ManualPartSizeMiB > maxManualPartSizeMiB {
			return cmn.Wrap(cmn.ErrLimitExceeded, nil, "manual part size %d MiB outside [%d, %d]",
				c.ManualPartSizeMiB, minManualPartSizeMiB, maxManualPartSizeMiB)
		}
	}
	if c.ConcurrencyCap < minConcurrency || c.ConcurrencyCap > maxConcurrency {
		return cmn.Wrap(cmn.ErrLimitExceeded, nil, "concurrency %d outside [%d, %d]",
			c.ConcurrencyCap, minConcurrency, maxConcurrency)
	}
	return nil
}

// Result summarizes what the engine actually did.
type Result struct {
	Action     strategy.Action
	UploadID   string // set only for Action == ActionMultipartCopy
	TotalBytes int64
}

// Engine runs exactly one copy per Run call.
type Engine struct {
	store store.ObjectStore
	cfg   CopyConfig
}

// New validates cfg and constructs an Engine bound to s.
func New(s store.ObjectStore, cfg CopyConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{store: s, cfg: cfg}, nil
}

// Run executes the strategy selector and, if needed, the full multipart
// lifecycle, then the verifier. sink may be nil.
func (e *Engine) Run(ctx context.Context, sink progress.Sink) (Result, error) {
	src, err := e.store.Head(ctx, e.cfg.Source)
	if err != nil {
		return Result{}, cmn.Wrap(cmn.ErrSourceNotFound, err, "head source")
	}

	toggles := strategy.Toggles{
		SkipMetadata:     e.cfg.SkipMetadata,
		SkipTags:         e.cfg.SkipTags,
		SkipStorageClass: e.cfg.SkipStorageClass,
		ForceCopy:        e.cfg.ForceCopy,
		AutoEnabled:      e.cfg.AutoEnabled,
	}

	decision, err := strategy.Decide(
		toggles, src,
		func() (*store.ObjectHead, error) { return e.headRecoveringNotFound(ctx, e.cfg.Destination) },
		func() (store.TagSet, error) { return e.tagsRecoveringNotFound(ctx, e.cfg.Destination) },
		func() (store.TagSet, error) { return e.tagsRecoveringNotFound(ctx, e.cfg.Source) },
		directiveBuilder{cfg: e.cfg},
	)
	if err != nil {
		return Result{}, err
	}

	if !e.cfg.Quiet {
		glog.Infof("[s3copy] %s -> %s: %s", e.cfg.Source, e.cfg.Destination, decision.Action)
	}

	result := Result{Action: decision.Action, TotalBytes: src.Size}

	switch decision.Action {
	case strategy.ActionSkip:
		// no writes.

	case strategy.ActionPropertySync, strategy.ActionInstantCopy:
		if !e.cfg.DryRun {
			if err := e.store.CopyObject(ctx, e.cfg.Source, e.cfg.Destination, decision.Directives); err != nil {
				return Result{}, cmn.Wrap(cmn.ErrUploadLifecycleFailed, err, "copy_object")
			}
		}

	case strategy.ActionTagSync:
		if !e.cfg.DryRun {
			if err := e.store.PutObjectTagging(ctx, e.cfg.Destination, decision.SourceTags); err != nil {
				return Result{}, cmn.Wrap(cmn.ErrUploadLifecycleFailed, err, "put_object_tagging")
			}
		}

	case strategy.ActionMultipartCopy:
		params := e.multipartParams(src, decision.SourceTags)

		totalParts := int(planner.ExpectedPartCount(src.Size, params.PartSize))
		prog := progress.NewState(totalParts, src.Size)
		if sink != nil {
			prog.Subscribe(sink)
		}

		lr, err := lifecycle.Run(ctx, e.store, params, initiateBuilder{cfg: e.cfg}, prog)
		if err != nil {
			return Result{}, err
		}
		result.UploadID = lr.UploadID
	}

	// Per spec.md §2 ("On success, Verifier runs") and §4.8 ("Runs iff
	// !dry_run AND verify != Off"), the verifier runs after every
	// successful action, not only multipart copies -- Open Question 1.
	if !e.cfg.DryRun && e.cfg.Verify != verify.Off {
		if err := verify.Run(ctx, e.store, e.cfg.Source, e.cfg.Destination, e.cfg.Verify); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

func (e *Engine) headRecoveringNotFound(ctx context.Context, ref store.ObjectRef) (*store.ObjectHead, error) {
	h, err := e.store.Head(ctx, ref)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

func (e *Engine) tagsRecoveringNotFound(ctx context.Context, ref store.ObjectRef) (store.TagSet, error) {
	tags, err := e.store.GetTags(ctx, ref)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return tags, nil
}

// multipartParams derives lifecycle.Params for the full multipart path,
// choosing between auto-planned and manual fixed sizing.
func (e *Engine) multipartParams(src *store.ObjectHead, srcTags store.TagSet) lifecycle.Params {
	p := lifecycle.Params{
		Source:      e.cfg.Source,
		Destination: e.cfg.Destination,
		SourceHead:  src,
		SourceTags:  srcTags,
		DryRun:      e.cfg.DryRun,
		SameRegion:  e.cfg.SameRegion,
	}

	if e.cfg.AutoEnabled {
		plan := planner.Build(e.cfg.AutoProfile, src.Size, e.cfg.SameRegion, e.cfg.ConcurrencyCap)
		p.Auto = true
		p.Profile = e.cfg.AutoProfile
		p.PartSize = plan.InitialPartSize
		p.Concurrency = plan.InitialConcurrency
		p.MaxConcurrency = plan.MaxConcurrency
		p.ProbePartCount = plan.ProbeParts
	} else {
		p.PartSize = int64(e.cfg.ManualPartSizeMiB) * planner.MiB
		p.Concurrency = e.cfg.ConcurrencyCap
	}

	return p
}

// directiveBuilder implements strategy.DirectiveBuilder for the
// Property-Sync / Instant-Copy single-request path.
type directiveBuilder struct{ cfg CopyConfig }

func (b directiveBuilder) Build(src *store.ObjectHead, srcTags store.TagSet, replaceTags bool) store.CopyDirectives {
	dir := store.CopyDirectives{
		MetadataDirective: store.DirectiveReplace,
		Properties:        src.Properties,
		CustomMetadata:    withoutSourceETag(src.CustomMetadata),
		ChecksumAlgorithm: b.cfg.ChecksumAlgorithm,
		SSE:               b.cfg.SSE,
	}
	if b.cfg.StorageClassOverride != "" {
		dir.StorageClass = b.cfg.StorageClassOverride
	} else {
		dir.StorageClass = src.StorageClass
	}
	if b.cfg.FullControlACL && !b.cfg.SkipACL {
		dir.ACL = "bucket-owner-full-control"
	}
	if replaceTags && !b.cfg.SkipTags {
		dir.TaggingDirective = store.DirectiveReplace
		dir.Tags = srcTags
	} else {
		dir.TaggingDirective = store.DirectiveCopy
	}
	return dir
}

// initiateBuilder implements lifecycle.InitiateBuilder for
// create_multipart_upload, per spec.md §4.6.
type initiateBuilder struct{ cfg CopyConfig }

func (b initiateBuilder) Build(src *store.ObjectHead, srcTags store.TagSet) store.CopyDirectives {
	md := withoutSourceETag(src.CustomMetadata)
	md[store.SourceETagMetadataKey] = cmn.UnquoteETag(src.ETag)

	dir := store.CopyDirectives{
		Properties:        src.Properties,
		CustomMetadata:    md,
		ChecksumAlgorithm: b.cfg.ChecksumAlgorithm,
		SSE:               b.cfg.SSE,
	}
	if b.cfg.StorageClassOverride != "" {
		dir.StorageClass = b.cfg.StorageClassOverride
	} else if !b.cfg.SkipStorageClass {
		dir.StorageClass = src.StorageClass
	}
	if b.cfg.FullControlACL && !b.cfg.SkipACL {
		dir.ACL = "bucket-owner-full-control"
	}
	if !b.cfg.SkipTags {
		dir.Tags = srcTags
	}
	return dir
}

func withoutSourceETag(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if strings.EqualFold(k, store.SourceETagMetadataKey) {
			continue
		}
		out[k] = v
	}
	return out
}
