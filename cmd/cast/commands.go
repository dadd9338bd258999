package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/cast-sync/cast/internal/decision"
	"github.com/cast-sync/cast/internal/engine"
	"github.com/cast-sync/cast/internal/vfs"
)

func policyFrom(allowSyncToCast bool) decision.Policy {
	return decision.Policy{AllowSyncToCast: allowSyncToCast}
}

func exitCodeFor(err error) int {
	var eerr *engine.Error
	if !errors.As(err, &eerr) {
		return 1
	}

	switch eerr.Kind {
	case engine.KindLockBusy:
		return 3
	case engine.KindConfigError:
		return 4
	case engine.KindMalformedFrontmatter:
		return 5
	case engine.KindDuplicateIdentifier:
		return 6
	case engine.KindMergeUnresolved:
		return 7
	default:
		return 2
	}
}

func runIndex(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cast index", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	vaultDir := fs.String("vault", ".", "vault root `directory`")
	rebuild := fs.Bool("rebuild", false, "discard the existing index and rebuild from scratch")
	autoFix := fs.Bool("auto-fix", true, "generate cast-id for participating documents missing one")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fsys := vfs.NewReal()

	v, err := engine.Open(fsys, *vaultDir)
	if err != nil {
		return err
	}

	result, err := engine.IndexVault(fsys, v, *rebuild, *autoFix)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "indexed %s: %d inserted, %d reused, %d deleted\n",
		v.ID(), result.Build.Inserted, result.Build.Reused, result.Build.Deleted)

	for _, w := range result.Build.Warnings {
		fmt.Fprintln(out, "warning:", w)
	}

	for _, d := range result.Build.Duplicates {
		fmt.Fprintln(out, d.Error())
	}

	return nil
}

type stringList []string

func (s *stringList) String() string     { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }
func (s *stringList) Type() string       { return "stringList" }

func runSync(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cast sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	vaultDir := fs.String("vault", ".", "driving vault root `directory`")

	var peerDirs stringList

	fs.Var(&peerDirs, "peer", "peer vault root `directory` (repeatable)")

	overpower := fs.Bool("overpower", false, "make the driving vault authoritative, ignoring peer-only edits")
	allowSyncToCast := fs.Bool("allow-sync-to-cast", false, "permit sync-tagged vaults to push changes back to cast-tagged ones")
	rebuild := fs.Bool("rebuild", false, "rebuild every vault's index from scratch before syncing")
	autoFix := fs.Bool("auto-fix", true, "generate cast-id for participating documents missing one")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if len(peerDirs) == 0 {
		return errors.New("sync requires at least one --peer")
	}

	fsys := vfs.NewReal()
	locker := vfs.NewLocker(fsys)

	driver, err := engine.Open(fsys, *vaultDir)
	if err != nil {
		return err
	}

	peers := make([]*engine.Vault, 0, len(peerDirs))

	for _, dir := range peerDirs {
		peer, err := engine.Open(fsys, dir)
		if err != nil {
			return err
		}

		peers = append(peers, peer)
	}

	opts := engine.SyncOptions{
		Overpower:  *overpower,
		RebuildIdx: *rebuild,
		AutoFixID:  *autoFix,
		Policy:     policyFrom(*allowSyncToCast),
	}

	result, err := engine.SyncAll(fsys, locker, driver, peers, opts)
	if err != nil {
		return err
	}

	for _, pr := range result.Peers {
		fmt.Fprintf(out, "%s <-> %s: %d synced, %d conflicts\n", driver.ID(), pr.PeerID, pr.Synced, pr.Conflicts)

		for _, o := range pr.Ordered {
			if o.Action == "SKIP" {
				continue
			}

			fmt.Fprintf(out, "  %s %s\n", o.Action, o.Path)
		}
	}

	return nil
}

func runReset(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cast reset", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	vaultDir := fs.String("vault", ".", "vault root `directory`")
	keepConfig := fs.Bool("keep-config", true, "keep config.yaml, clearing only index, sync-state and locks")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fsys := vfs.NewReal()

	if err := engine.Reset(fsys, *vaultDir, *keepConfig); err != nil {
		return err
	}

	fmt.Fprintf(out, "reset %s\n", *vaultDir)

	return nil
}
