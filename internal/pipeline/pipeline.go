// Package pipeline runs the patch-and-reconcile sequence: access guard,
// ownership, backup, word patching, then signature and checksum repair.
// Every stage is a hard gate; a failure aborts the run with no further
// mutation.
package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ZacharyZcR/QWordPatch/internal/backup"
	"github.com/ZacharyZcR/QWordPatch/internal/guard"
	"github.com/ZacharyZcR/QWordPatch/internal/pe"
)

// Config describes one pipeline invocation.
type Config struct {
	// Path is the target binary.
	Path string
	// Pairs are matched in order; the first pair whose original value
	// equals a scanned word wins for that word.
	Pairs []pe.PatchPair
	// Subject is the common name of the self-issued signing identity.
	// Empty selects pe.DefaultSubject.
	Subject string
	// Progress receives one callback per matched word.
	Progress func(offset int64, original, replacement uint64, err error)
}

// Result reports what a completed (or soft-stopped) run did.
type Result struct {
	Substitutions    int
	WriteFailures    int
	BackupPath       string
	BackupCreated    bool
	Halted           bool // nothing matched; reconciliation skipped
	SignatureRemoved bool
	ChecksumUpdated  bool
	Checksum         uint32
	Signed           bool
}

// Run executes the pipeline against cfg.Path. On a completed run the
// returned result carries the substitution count; zero substitutions is a
// soft stop (Halted) with the file byte-identical to its input.
func Run(cfg Config) (*Result, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if len(cfg.Pairs) == 0 {
		return nil, ErrNoValues
	}

	if err := guard.Check(cfg.Path); err != nil {
		return nil, stageErr(StageGuard, err)
	}

	if err := guard.TakeOwnership(cfg.Path); err != nil {
		return nil, stageErr(StageOwnership, fmt.Errorf("could not take ownership of %s: %w", cfg.Path, err))
	}

	res := &Result{}

	backupPath, created, err := backup.Ensure(cfg.Path)
	if err != nil {
		return nil, stageErr(StageBackup, fmt.Errorf("could not create backup of %s: %w", cfg.Path, err))
	}
	res.BackupPath = backupPath
	res.BackupCreated = created
	if created {
		logrus.Infof("saved backup as %s", backupPath)
	} else {
		logrus.Infof("backup %s already exists - keeping it", backupPath)
	}

	if err := patch(cfg, res); err != nil {
		return nil, stageErr(StagePatch, err)
	}

	if res.Substitutions == 0 {
		// Rewriting the checksum or signature of an untouched file is
		// wasted work; stop here.
		res.Halted = true
		logrus.Info("no elements were patched - aborting")
		return res, nil
	}

	if err := reconcile(cfg, res); err != nil {
		return res, stageErr(StageReconcile, err)
	}

	return res, nil
}

func patch(cfg Config, res *Result) error {
	patcher, err := pe.NewPatcher(cfg.Path)
	if err != nil {
		return err
	}
	defer func() { _ = patcher.Close() }()

	patcher.Progress = cfg.Progress
	outcome, err := patcher.Apply(cfg.Pairs)
	if err != nil {
		return err
	}

	res.Substitutions = outcome.Substitutions
	res.WriteFailures = outcome.WriteFailures
	if outcome.WriteFailures > 0 {
		logrus.Warnf("%d matched word(s) could not be written back", outcome.WriteFailures)
	}
	return nil
}

// reconcile re-establishes the file's structural integrity after the
// patch: strip the now-invalid signature, repair the header checksum, then
// re-sign. Strictly sequential; a failure leaves the file patched and the
// backup as the only recovery path.
func reconcile(cfg Config, res *Result) error {
	removed, err := pe.StripSignature(cfg.Path)
	if err != nil {
		return fmt.Errorf("could not remove digital signature: %w", err)
	}
	res.SignatureRemoved = removed
	if removed {
		logrus.Info("removed digital signature")
	} else {
		logrus.Info("no digital signature to remove")
	}

	stored, computed, err := pe.CheckSum(cfg.Path)
	if err != nil {
		return fmt.Errorf("could not compute checksum: %w", err)
	}
	res.Checksum = computed
	logrus.Infof("PE checksum: %08X", computed)

	if stored != computed {
		if err := pe.RepairChecksum(cfg.Path, stored, computed); err != nil {
			return fmt.Errorf("could not update checksum: %w", err)
		}
		res.ChecksumUpdated = true
	}

	logrus.Info("applying digital signature...")
	if err := pe.SelfSign(cfg.Path, cfg.Subject); err != nil {
		return fmt.Errorf("could not sign file: %w", err)
	}
	res.Signed = true

	return nil
}
