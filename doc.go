/*
Package distill provides a content-addressed transform cache for deriving
text artifacts from arbitrary source files.

It converts documents, source code, images, and plain text into derived text
through pluggable engines, and caches each artifact under a key computed from
the source content hash, the engine identity, and the engine options, so
repeating an identical transformation is free.

# Core Architecture

distill keeps two independently mutable stores consistent:

  - a single flat cache directory of artifact files named <key>.<ext>
  - a metadata store of transform records, keyed by
    (checksum, engine, options hash)

The cache key is always recomputed from a record's identity, never stored, so
a record and its on-disk filename agree by construction. A size-bounded
budget is enforced by least-recently-used eviction, and a prune job repairs
drift in both directions when either side is mutated out-of-band.

# Basic Usage

Creating a controller:

	meta := distill.NewMemStore()
	engines := distill.DefaultRegistry(afero.NewOsFs())
	ctrl, err := distill.New(meta, engines,
	    distill.WithCacheDir(".distill"),
	    distill.WithMaxBytes(1<<30),
	)
	if err != nil {
	    log.Fatalf("failed to create controller: %v", err)
	}

Transforming a file:

	key, err := ctrl.Transform(ctx, "notes/plan.txt", distill.EngineText, nil, "")
	if err != nil {
	    log.Fatalf("transform failed: %v", err)
	}

Retrieving derived text, by key or by source path:

	text, err := ctrl.GetContent(ctx, key, "")

# Engines

An engine is anything implementing the Engine interface. The built-in
variants are two pass-through engines (text with UTF-8 validation, binary
verbatim), a Go source AST extractor, a document converter that shells out to
an external command, and an image captioner built on the same command runner:

	engines, err := distill.NewEngineRegistry(map[string]distill.Engine{
	    distill.EngineText:    distill.NewPassthroughEngine(fs, distill.PassthroughText),
	    distill.EngineConvert: distill.NewConvertEngine(fs, "pandoc", []string{"{input}", "-o", "{outdir}/{stem}.md"}),
	})

When no engine is named, SelectEngine picks one from extension tables and a
bounded content sniff.

# Metadata Stores

The metadata persistence technology is abstract. MemStore is the in-memory
implementation; MongoStore keeps records in a MongoDB collection. Any type
implementing MetadataStore works.

# Error Handling

Failures are typed: ErrNotFound, ErrUnknownEngine, ErrCacheInconsistent, and
*EngineError (which distinguishes retryable timeouts from permanent
failures). Stale metadata is self-repaired on read rather than surfaced, and
Prune never fails; it returns counts and warnings.

	key, err := ctrl.Transform(ctx, path, "", nil, "")
	if err != nil {
	    var engErr *distill.EngineError
	    if errors.As(err, &engErr) && engErr.Retryable() {
	        // back off and retry
	    }
	}
*/
package distill
