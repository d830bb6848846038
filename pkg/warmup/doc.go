// Package warmup pre-fills the proxy caches by resolving a list of request
// paths in parallel, typically once at startup.
//
// Example usage:
//
//	w := warmup.New(resolver, warmup.DefaultConfig())
//	summary, err := w.Warm(ctx, []string{
//		"/games.roblox.com/v1/games?universeIds=1",
//		"/thumbnails.roblox.com/v1/assets?assetIds=1&size=420x420&format=Png",
//	})
//
// The warmer:
//   - Spawns a worker pool (default 4 workers)
//   - Resolves every path through the normal memory, disk, upstream order
//   - Logs progress and per-path failures
//   - Returns a summary; a failed path never stops the others
package warmup
