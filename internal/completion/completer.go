package completion

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// CacheDirFunc returns the cache directory to use for completion.
type CacheDirFunc func(cmd *cobra.Command) string

// DefaultCacheDirFunc resolves the cache directory from the --cache-dir flag,
// then BOOTH_CACHE_DIR, then the default location.
//
// Config files are not read during completion: PersistentPreRunE does not
// run for __complete and completions must stay fast.
func DefaultCacheDirFunc(cmd *cobra.Command) string {
	if root := cmd.Root(); root != nil {
		if flag := root.PersistentFlags().Lookup("cache-dir"); flag != nil && flag.Changed {
			return flag.Value.String()
		}
	}
	return os.Getenv("BOOTH_CACHE_DIR")
}

// Completer provides tab completion functions. It reads only the local
// cache and never builds the full app.
type Completer struct {
	getCacheDir CacheDirFunc
}

// NewCompleter creates a Completer. A nil getCacheDir uses
// DefaultCacheDirFunc.
func NewCompleter(getCacheDir CacheDirFunc) *Completer {
	if getCacheDir == nil {
		getCacheDir = DefaultCacheDirFunc
	}
	return &Completer{getCacheDir: getCacheDir}
}

func (c *Completer) store(cmd *cobra.Command) *Store {
	return NewStore(c.getCacheDir(cmd))
}

// PathCompletion completes the first positional argument with previously
// requested API paths.
func (c *Completer) PathCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		paths := c.store(cmd).Paths()
		needle := strings.ToLower(toComplete)
		var completions []cobra.Completion
		for _, p := range paths {
			if strings.HasPrefix(strings.ToLower(p.Path), needle) {
				completions = append(completions, cobra.CompletionWithDesc(p.Path, hitsLabel(p.Hits)))
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

func hitsLabel(n int) string {
	if n == 1 {
		return "used once"
	}
	return fmt.Sprintf("used %d times", n)
}
