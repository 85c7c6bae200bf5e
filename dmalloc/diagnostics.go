package dmalloc

import (
	"context"
	"fmt"
	"io"

	"github.com/vkngwrapper/dmalloc/memutils"
	"github.com/vkngwrapper/dmalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// reportInvalidFree explains why addr could not be released. Addresses outside the range the
// allocator has ever handed out are "not in heap". Anything else is "not allocated", followed by the
// allocation the address points into or, failing that, the recent release it repeats.
func (a *Allocator) reportInvalidFree(addr memutils.Address, site metadata.Site) {
	if !a.state.stats.InHeap(addr) {
		a.reportBug(site, fmt.Sprintf("invalid free of pointer %s, not in heap", addr), "")
		return
	}

	message := fmt.Sprintf("invalid free of pointer %s, not allocated", addr)

	if block, ok := a.state.registry.Containing(addr); ok {
		detail := fmt.Sprintf("%s: %s is %d bytes inside a %d byte region allocated here",
			block.Site, addr, uint64(addr-block.Address), block.Size)
		a.reportBug(site, message, detail,
			slog.String("AllocatedAt", block.Site.String()),
			slog.String("BlockAddress", block.Address.String()),
			slog.Uint64("BlockSize", block.Size),
		)
		return
	}

	if freed, ok := a.state.history.Lookup(addr); ok {
		detail := fmt.Sprintf("%s: %s is a %d byte region allocated here and already freed at %s",
			freed.Site, addr, freed.Size, freed.FreedAt)
		a.reportBug(site, message, detail,
			slog.String("AllocatedAt", freed.Site.String()),
			slog.String("FreedAt", freed.FreedAt.String()),
			slog.Uint64("BlockSize", freed.Size),
		)
		return
	}

	a.reportBug(site, message, "")
}

// reportBug writes a MEMORY BUG line, and an optional detail line, to the diagnostic writer and logs
// the same information
func (a *Allocator) reportBug(site metadata.Site, message string, detail string, attrs ...slog.Attr) {
	text := fmt.Sprintf("MEMORY BUG: %s: %s\n", site, message)
	if detail != "" {
		text += detail + "\n"
	}

	_, err := io.WriteString(a.diagnostics, text)
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}

	attrs = append(attrs, slog.String("Site", site.String()))
	a.logger.LogAttrs(context.Background(), slog.LevelError, "MEMORY BUG: "+message, attrs...)
}
