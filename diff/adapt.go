package diff

import "github.com/bobg/syncr"

// FromFileEntry converts a syncr.FileEntry (as produced by scan.Scan or
// received over the wire) into the narrower EntryView this package
// operates on.
func FromFileEntry(e syncr.FileEntry) EntryView {
	chunks := make([][32]byte, len(e.Chunks))
	for i, r := range e.Chunks {
		chunks[i] = r
	}
	return EntryView{Kind: uint8(e.Kind), Mode: e.Mode, Size: e.Size, MtimeNs: e.MtimeNs, Chunks: chunks}
}

// ListingFromEntries builds a Listing from a slice of FileEntry, keyed
// by each entry's Path.
func ListingFromEntries(entries []syncr.FileEntry) Listing {
	out := make(Listing, len(entries))
	for _, e := range entries {
		out[e.Path] = FromFileEntry(e)
	}
	return out
}
