// Package repository converges a local working copy onto one tracked
// remote reference. Each Update() fetches the configured remote
// reference onto a fixed local staging reference, compares it with the
// current HEAD and, only when the identities differ, hard resets the
// working tree and index onto the staged commit, discarding local
// modifications and untracked files.
//
// Authentication is negotiated through a credential resolver which is
// challenged with the mechanisms the remote accepts (a bitmask derived
// from the transport scheme) and picks exactly one concrete credential
// or fails. A rejected mechanism narrows the mask and the resolver is
// challenged again, so one fetch can consult the resolver several
// times.
//
// A Repository's name and config never change after construction. The
// last-checked/last-changed timestamps are the only shared mutable
// state and are guarded by a single lock; the update sequence itself
// relies on the dispatch layer to serialise Update() calls per
// repository.
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to
// 'trace' level
//
// Example:
//
//	loggerLevel  = new(slog.LevelVar)
//	levelStrings = map[string]slog.Level{
//		"trace": slog.Level(-8),
//		"debug": slog.LevelDebug,
//		"info":  slog.LevelInfo,
//		"warn":  slog.LevelWarn,
//		"error": slog.LevelError,
//	}
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: loggerLevel,
//	}))
//	loggerLevel.Set(levelStrings["trace"])
//
//	repo, err := repository.New(repoConf, logger)
//	if err != nil {
//		panic(err)
//	}
package repository
