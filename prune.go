package distill

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// PruneResult summarizes one reconciliation batch.
type PruneResult struct {
	// Deleted counts removed records and removed orphan files.
	Deleted int
	// Checked counts metadata records and cache files examined.
	Checked int
	// Warnings lists the entries that could not be repaired. A non-empty
	// list does not mean the batch failed; the remaining entries were still
	// processed.
	Warnings []string
}

// Prune repairs drift between the filesystem and the metadata store in both
// directions: records whose backing file is gone are deleted, and files no
// surviving record references are removed. Afterwards the size counter is
// recomputed from the surviving files; prune is the one authority that can
// fully reconcile it.
//
// Prune never returns an error. Individual failures become warnings so a
// scheduled maintenance job completes even when entries are corrupt.
func (c *Controller) Prune(ctx context.Context) PruneResult {
	var res PruneResult

	recs, err := c.meta.Find(ctx, RecordFilter{}, FindOptions{})
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("list records: %v", err))
		return res
	}

	// Pass 1: stale records. A location that cannot be resolved counts the
	// same as a missing file.
	survivingStems := make(map[string]bool)
	for _, rec := range recs {
		res.Checked++

		loc, err := c.resolveLocation(rec)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("record %s/%s: %v", rec.Checksum, rec.Engine, err))
		}
		if loc != "" {
			if exists, _ := afero.Exists(c.fs, loc); exists {
				stem := strings.TrimSuffix(filepath.Base(loc), filepath.Ext(loc))
				survivingStems[stem] = true
				continue
			}
		}

		if _, err := c.meta.DeleteMany(ctx, FilterByIdentity(rec.Checksum, rec.Engine, rec.OptionsHash)); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("delete record %s/%s: %v", rec.Checksum, rec.Engine, err))
			continue
		}
		res.Deleted++
	}

	// Pass 2: orphaned files, plus the reconciled byte total of everything
	// that stays.
	infos, err := afero.ReadDir(c.fs, c.cacheDir)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("list cache dir: %v", err))
		return res
	}

	var total int64
	for _, fi := range infos {
		if fi.IsDir() || fi.Name() == sizeCounterFile {
			continue
		}
		res.Checked++

		stem := strings.TrimSuffix(fi.Name(), filepath.Ext(fi.Name()))
		if survivingStems[stem] {
			total += fi.Size()
			continue
		}

		path := filepath.Join(c.cacheDir, fi.Name())
		if err := c.fs.Remove(path); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("remove orphan %s: %v", path, err))
			total += fi.Size()
			continue
		}
		res.Deleted++
	}

	if err := c.store.setSize(total); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("persist size counter: %v", err))
	}

	c.log.Info("prune complete",
		"checked", res.Checked, "deleted", res.Deleted, "warnings", len(res.Warnings))
	return res
}

// resolveLocation returns the expected on-disk location of a record's
// artifact: the stored location when present, otherwise a glob on the
// derived key stem for entries recorded before locations were stored.
func (c *Controller) resolveLocation(rec Record) (string, error) {
	if rec.CacheLocation != "" {
		return rec.CacheLocation, nil
	}
	matches, err := afero.Glob(c.fs, filepath.Join(c.cacheDir, rec.Key()+".*"))
	if err != nil {
		return "", fmt.Errorf("malformed cache location: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}
