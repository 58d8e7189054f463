package cli

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/sb3fix/pkg/archive"
	"github.com/matzehuels/sb3fix/pkg/descriptor"
	"github.com/matzehuels/sb3fix/pkg/errors"
)

// exactlyOneArchive accepts a single positional argument naming the archive.
func exactlyOneArchive(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New(errors.ErrCodeInvalidInput, "expected exactly one archive path, got %d arguments", len(args))
	}
	if args[0] == "" {
		return errors.New(errors.ErrCodeInvalidInput, "archive path cannot be empty")
	}
	return nil
}

// runRepair strips annotations from the archive named by args[0].
// The path is used as given, so relative paths resolve against the working
// directory.
func (c *CLI) runRepair(cmd *cobra.Command, args []string) error {
	path := args[0]
	logger := loggerFromContext(cmd.Context())
	out := cmd.OutOrStdout()

	logger.Debug("repairing archive", "path", path, "entry", c.cfg.Entry, "temp_dir", c.cfg.TempDir)
	logChecksum(logger, "archive checksum before", path)

	var stats descriptor.Stats
	prog := newProgress(logger)
	report, err := archive.Rewrite(path, archive.Options{
		Entry: c.cfg.Entry,
		Transform: func(raw []byte) ([]byte, error) {
			res, err := descriptor.Repair(raw)
			if err != nil {
				return nil, err
			}
			stats = res.Stats
			return res.Data, nil
		},
		Temp:   archive.SystemTemp{Dir: c.cfg.TempDir},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	prog.done("Rewrote " + path)
	logChecksum(logger, "archive checksum after", path)

	if !report.DescriptorFound {
		printWarning(out, "No %s in archive, nothing to repair", c.cfg.Entry)
		printFile(out, path)
		return nil
	}

	if stats.Changed() {
		printSuccess(out, "Removed annotations from %s", c.cfg.Entry)
	} else {
		printSuccess(out, "No annotations found in %s", c.cfg.Entry)
	}
	printFile(out, path)
	printKeyValue(out, "descriptor", c.cfg.Entry)
	printCount(out, "entries", report.Entries)
	printCount(out, "targets", stats.Targets)
	printCount(out, "annotations", stats.Comments)
	printCount(out, "links", stats.Links)
	return nil
}

// logChecksum logs the archive's SHA-256 at debug level. Hashing reads the
// whole file, so it is skipped unless debug logging is on.
func logChecksum(logger *log.Logger, msg, path string) {
	if logger.GetLevel() > log.DebugLevel {
		return
	}
	sum, err := archive.HashFile(path)
	if err != nil {
		logger.Debug(msg, "error", err)
		return
	}
	logger.Debug(msg, "sha256", sum)
}
