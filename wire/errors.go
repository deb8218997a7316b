package wire

import (
	"github.com/pkg/errors"

	"github.com/bobg/syncr"
)

func errArgIndex(i, n int) error {
	return errors.Errorf("wire: argument %d requested, frame has %d", i, n)
}

// SeverityFrom converts a syncr.Severity to its wire string.
func SeverityFrom(s syncr.Severity) Severity {
	switch s {
	case syncr.Warn:
		return SeverityWarn
	case syncr.Fatal:
		return SeverityFatal
	default:
		return SeverityFile
	}
}
