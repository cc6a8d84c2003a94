package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tsingsun/capre/internal/capre"
	"github.com/tsingsun/capre/internal/fileset"
)

const (
	doneDir   = "done"
	failedDir = "failed"

	// settleDelay lets a copy finish before the inbox is scanned.
	settleDelay = 500 * time.Millisecond
)

// watch imports every complete file set that appears in dir until ctx is
// cancelled. Imported files move to dir/done, rejected ones to dir/failed.
func watch(ctx context.Context, imp *capre.Importer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return err
	}
	slog.InfoContext(ctx, "watching inbox", "dir", dir)
	if _, err := scanInbox(ctx, imp, dir); err != nil {
		return err
	}

	timer := time.NewTimer(settleDelay)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				timer.Reset(settleDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "error watching inbox", "err", err)
		case <-timer.C:
			if _, err := scanInbox(ctx, imp, dir); err != nil {
				return err
			}
		}
	}
}

// scanInbox imports the complete sets currently in dir and returns how many
// were imported. A set that fails to import is moved aside and logged; only
// errors reading the inbox itself are returned.
func scanInbox(ctx context.Context, imp *capre.Importer, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".dbf") {
			names = append(names, filepath.Join(dir, e.Name()))
		}
	}
	imported := 0
	for _, set := range fileset.Find(names) {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		res, err := imp.Import(ctx, set)
		if ctx.Err() != nil {
			return imported, ctx.Err()
		}
		dest := doneDir
		if err != nil {
			slog.ErrorContext(ctx, "import failed", "prefix", set.Prefix, "err", err)
			dest = failedDir
		} else {
			slog.InfoContext(ctx, "imported set", "prefix", set.Prefix, "session", res.SessionID)
			imported++
		}
		if err := moveSet(set, filepath.Join(dir, dest)); err != nil {
			return imported, err
		}
	}
	return imported, nil
}

func moveSet(set *fileset.Set, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, p := range set.Paths {
		if err := os.Rename(p, filepath.Join(dest, filepath.Base(p))); err != nil {
			return fmt.Errorf("failed to move %s: %w", p, err)
		}
	}
	return nil
}
