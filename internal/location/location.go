package location

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Location is where a log statement was declared.
type Location struct {
	File   string
	Line   uint64
	Module string
}

// Table maps frame indices to declaration sites.
type Table map[uint64]Location

// Missing returns the indices that have no entry, in input order.
func (t Table) Missing(indices []uint64) []uint64 {
	var out []uint64
	for _, idx := range indices {
		if _, ok := t[idx]; !ok {
			out = append(out, idx)
		}
	}
	return out
}

// Covers reports whether every index has an entry.
func (t Table) Covers(indices []uint64) bool {
	for _, idx := range indices {
		if _, ok := t[idx]; !ok {
			return false
		}
	}
	return true
}

// Metadata is the location attached to one emitted frame. File is relative
// to the reference directory when the source lies under it.
type Metadata struct {
	File   string
	Line   uint64
	Module string
}

const unavailableMsg = "location info is unavailable; it will be omitted from the output"

// Joiner attaches location metadata to frames. Whether locations are used
// at all is decided once, in NewJoiner.
type Joiner struct {
	locs   Table
	refDir string
}

// NewJoiner keeps locs only if it covers every index; otherwise locations
// are disabled for the whole run and a single warning is logged.
func NewJoiner(locs Table, indices []uint64, refDir string) *Joiner {
	j := &Joiner{refDir: refDir}
	if locs == nil {
		log.Warn().Msg(unavailableMsg)
		return j
	}
	if len(locs) == 0 && len(indices) > 0 {
		log.Warn().Msg("insufficient DWARF info; compile your program with `debug = 2` to enable location info")
		return j
	}
	if missing := locs.Missing(indices); len(missing) > 0 {
		log.Warn().
			Int("missing", len(missing)).
			Int("indices", len(indices)).
			Msg("(BUG) location info is incomplete; it will be omitted from the output")
		return j
	}
	j.locs = locs
	return j
}

// Unavailable returns a disabled joiner for a run whose location data
// could not be read, logging cause with the single warning.
func Unavailable(cause error) *Joiner {
	log.Warn().Err(cause).Msg(unavailableMsg)
	return &Joiner{}
}

// Enabled reports whether frames carry location metadata this run.
func (j *Joiner) Enabled() bool { return j.locs != nil }

// Join resolves index. ok is false when locations are disabled. A missing
// entry while enabled violates the coverage check and panics.
func (j *Joiner) Join(index uint64) (Metadata, bool) {
	if j.locs == nil {
		return Metadata{}, false
	}
	loc, ok := j.locs[index]
	if !ok {
		panic(fmt.Sprintf("location: index %d missing after coverage check", index))
	}
	return Metadata{
		File:   Relativize(loc.File, j.refDir),
		Line:   loc.Line,
		Module: loc.Module,
	}, true
}

// Relativize strips refDir from path when path lies under it, comparing
// whole path components. Other paths are returned unchanged.
func Relativize(path, refDir string) string {
	if refDir == "" || !filepath.IsAbs(path) || !filepath.IsAbs(refDir) {
		return path
	}
	rel, err := filepath.Rel(filepath.Clean(refDir), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
