// Package importer orchestrates a full pack-processing session:
// scanning the pack stream, resolving deltas against the decode cache
// and the object store, and committing every resolved object. Gateway
// and peer-distribution layers call this package as a unit; they never
// drive the scanner or resolver directly.
package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/plumbing/format/packfile"
	"github.com/quarry-scm/quarry/plumbing/object"
	"github.com/quarry-scm/quarry/storage"
	"github.com/quarry-scm/quarry/utils/trace"
)

// DecodeCache is the cache contract an import session needs: base
// lookups with single-flight loading, plus spill retention control at
// the end of the session.
type DecodeCache interface {
	packfile.BaseCache
	PurgeSpill() error
}

// RefLister is the collaborator that knows the repository's current
// branches, used for single-branch policy checks. Ref storage itself
// is out of the importer's hands.
type RefLister interface {
	Branches(ctx context.Context, repoPath string) ([]string, error)
}

// Importer runs import sessions. Multiple sessions may run
// concurrently; the object store and the decode cache are the only
// shared structures between them.
type Importer struct {
	store *storage.Store
	cache DecodeCache
	refs  RefLister

	format          plumbing.ObjectFormat
	multiBranchDirs []string
	spillCleanup    bool
	validate        bool
}

// Option configures an Importer.
type Option func(*Importer)

// WithRefLister wires the branch lister used for single-branch policy
// checks. Without it, repositories are assumed to have no branches yet.
func WithRefLister(refs RefLister) Option {
	return func(i *Importer) { i.refs = refs }
}

// WithObjectFormat sets the object addressing format. Defaults to SHA1.
func WithObjectFormat(f plumbing.ObjectFormat) Option {
	return func(i *Importer) { i.format = f }
}

// WithMultiBranchDirs grants multi-branch/tag import capability to
// repositories under the given path prefixes.
func WithMultiBranchDirs(dirs []string) Option {
	return func(i *Importer) { i.multiBranchDirs = dirs }
}

// WithSpillCleanup purges the cache spill directory at the end of
// every session.
func WithSpillCleanup(cleanup bool) Option {
	return func(i *Importer) { i.spillCleanup = cleanup }
}

// WithValidation controls decoding of tree and commit payloads on
// ingest. Enabled by default; malformed payloads abort the session.
func WithValidation(validate bool) Option {
	return func(i *Importer) { i.validate = validate }
}

// New returns an Importer committing to store and caching through
// cache.
func New(store *storage.Store, cache DecodeCache, opts ...Option) *Importer {
	imp := &Importer{
		store:    store,
		cache:    cache,
		validate: true,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Request describes one import session.
type Request struct {
	// RepoPath is the repository the pack belongs to.
	RepoPath string
	// Refs are the ref updates negotiated with the client. They are
	// only used for policy checks.
	Refs []ReferenceUpdate
	// Pack is the raw pack byte stream.
	Pack io.Reader
}

// Report summarizes an import session. When a session aborts, the
// report carries the counts committed up to the failure plus the
// errors; objects already stored remain valid and reusable.
type Report struct {
	Mode Mode

	Commits int
	Trees   int
	Blobs   int
	Tags    int

	// TotalBytes is the sum of the decoded sizes of all committed
	// objects.
	TotalBytes int64
	// DedupHits counts objects that were already stored.
	DedupHits int
	// Checksum is the pack trailer checksum, set when the footer was
	// reached.
	Checksum plumbing.ObjectID

	Errors []string
}

// Objects returns the total count of committed objects.
func (r *Report) Objects() int {
	return r.Commits + r.Trees + r.Blobs + r.Tags
}

func (r *Report) fail(err error) error {
	r.Errors = append(r.Errors, err.Error())
	return err
}

func (r *Report) count(obj plumbing.EncodedObject) {
	switch obj.Type() {
	case plumbing.CommitObject:
		r.Commits++
	case plumbing.TreeObject:
		r.Trees++
	case plumbing.BlobObject:
		r.Blobs++
	case plumbing.TagObject:
		r.Tags++
	}
	r.TotalBytes += obj.Size()
}

// Import runs one session. The policy check runs before any other
// work; resolved objects are staged during the scan and committed to
// the store only after the pack checksum verifies, so a corrupt pack
// commits nothing. A storage failure mid-commit aborts the session,
// leaving already-written objects in place for the retrying caller.
func (imp *Importer) Import(ctx context.Context, req Request) (*Report, error) {
	report := &Report{Mode: ModeFor(imp.multiBranchDirs, req.RepoPath)}

	if err := imp.checkPolicy(ctx, report.Mode, req); err != nil {
		return report, report.fail(err)
	}

	trace.General.Printf("importer: session for %s (%s)", req.RepoPath, report.Mode)

	scanner := packfile.NewScanner(req.Pack, packfile.WithObjectFormat(imp.format))
	resolver := packfile.NewResolver(imp.format, imp.cache, imp.store)

	var staged []plumbing.EncodedObject
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return report, report.fail(err)
		}

		data := scanner.Data()
		switch data.Section {
		case packfile.HeaderSection:
			// Entry count is enforced by the scanner itself.

		case packfile.EntrySection:
			entry := data.Value().(packfile.Entry)
			resolver.Track(&entry)

			obj, err := resolver.Resolve(ctx, &entry)
			if err != nil {
				return report, report.fail(err)
			}

			if imp.validate {
				if err := imp.validateObject(obj); err != nil {
					return report, report.fail(err)
				}
			}

			staged = append(staged, obj)

		case packfile.FooterSection:
			report.Checksum = data.Value().(plumbing.ObjectID)
		}
	}

	if err := scanner.Error(); err != nil {
		return report, report.fail(err)
	}

	for _, obj := range staged {
		if err := ctx.Err(); err != nil {
			return report, report.fail(err)
		}
		if err := imp.commit(ctx, report, obj); err != nil {
			return report, report.fail(err)
		}
	}

	if imp.spillCleanup {
		if err := imp.cache.PurgeSpill(); err != nil {
			trace.Cache.Printf("importer: spill cleanup failed: %v", err)
		}
	}

	trace.General.Printf("importer: session for %s done: %d objects, %d bytes, %d dedup hits",
		req.RepoPath, report.Objects(), report.TotalBytes, report.DedupHits)

	return report, nil
}

// commit stores and caches one resolved object.
func (imp *Importer) commit(ctx context.Context, report *Report, obj plumbing.EncodedObject) error {
	_, dedup, err := imp.store.Put(ctx, obj)
	if err != nil {
		return err
	}
	if dedup {
		report.DedupHits++
	}

	imp.cache.Put(obj)
	report.count(obj)
	return nil
}

// validateObject decodes tree and commit payloads, rejecting objects
// that cannot possibly be read back. Blob and tag payloads are opaque.
func (imp *Importer) validateObject(obj plumbing.EncodedObject) error {
	var err error
	switch obj.Type() {
	case plumbing.TreeObject:
		_, err = object.DecodeTree(mustContents(obj), imp.format)
	case plumbing.CommitObject:
		_, err = object.DecodeCommit(mustContents(obj), imp.format)
	default:
		return nil
	}

	if err != nil {
		return plumbing.NewFormatError(fmt.Errorf("object %s: %w", obj.Hash(), err))
	}
	return nil
}

// checkPolicy enforces the import mode before any object commit.
func (imp *Importer) checkPolicy(ctx context.Context, mode Mode, req Request) error {
	if mode != SingleBranch {
		return nil
	}

	branches := map[string]bool{}
	if imp.refs != nil {
		existing, err := imp.refs.Branches(ctx, req.RepoPath)
		if err != nil {
			return plumbing.NewStorageError(fmt.Errorf("listing branches of %s: %w", req.RepoPath, err))
		}
		for _, b := range existing {
			branches[b] = true
		}
	}

	for _, ref := range req.Refs {
		switch {
		case ref.IsTag():
			return &plumbing.PolicyError{
				Reason: fmt.Sprintf("repository %s does not accept tag %s", req.RepoPath, ref.Short()),
			}
		case ref.IsBranch():
			branches[ref.Short()] = true
		}
	}

	if len(branches) > 1 {
		return &plumbing.PolicyError{
			Reason: fmt.Sprintf("repository %s is restricted to a single branch", req.RepoPath),
		}
	}

	return nil
}

func mustContents(obj plumbing.EncodedObject) []byte {
	if mo, ok := obj.(*plumbing.MemoryObject); ok {
		return mo.Contents()
	}

	r, err := obj.Reader()
	if err != nil {
		return nil
	}
	defer r.Close()

	data, _ := io.ReadAll(r)
	return data
}
