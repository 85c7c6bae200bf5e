package dmalloc

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/dmalloc/basealloc"
	"github.com/vkngwrapper/dmalloc/internal/utils"
	"github.com/vkngwrapper/dmalloc/memutils"
	"github.com/vkngwrapper/dmalloc/memutils/metadata"
	"github.com/vkngwrapper/dmalloc/memutils/system"
	"golang.org/x/exp/slog"
)

// DefaultFreedHistory is the number of released blocks remembered for double-free diagnostics when
// CreateOptions.FreedHistory is 0
const DefaultFreedHistory = 1024

// CreateOptions contains optional settings when creating an allocator. It is valid to leave all the
// fields blank.
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// System is where memory ultimately comes from. When nil, a system.Heap wrapped in a system.Limit
	// with MaxAllocationSize is used.
	System system.Allocator
	// MaxAllocationSize is the largest single request passed on to the default system allocator.
	// It is ignored when System is provided. 0 means system.DefaultMaxAllocationSize.
	MaxAllocationSize int

	// Seed, ReuseAttempts and ReusePercent control address recycling in the base allocator. See
	// basealloc.Options.
	Seed          uint64
	ReuseAttempts int
	ReusePercent  int

	// FreedHistory is the number of released blocks remembered so that releasing one of them again
	// can be reported as a double free. 0 means DefaultFreedHistory, a negative value remembers
	// nothing.
	FreedHistory int
	// GuardBytes is the number of bytes placed after each allocation and checked for damage when the
	// allocation is released. It must be a multiple of 4. 0 means memutils.DebugMargin, a negative
	// value disables guards.
	GuardBytes int

	// Diagnostics receives MEMORY BUG reports. Defaults to os.Stderr.
	Diagnostics io.Writer
	// Output receives PrintStatistics and PrintLeakReport. Defaults to os.Stdout.
	Output io.Writer
}

// New creates a new Allocator
//
// logger - receives debug records for every operation and error records for misuse. May be nil.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	guardBytes := options.GuardBytes
	if guardBytes == 0 {
		guardBytes = memutils.DebugMargin
	} else if guardBytes < 0 {
		guardBytes = 0
	}
	err := memutils.CheckGuardBytes(guardBytes, "CreateOptions.GuardBytes")
	if err != nil {
		return nil, err
	}

	if options.MaxAllocationSize < 0 {
		return nil, errors.Newf("CreateOptions.MaxAllocationSize must not be negative, but was %d", options.MaxAllocationSize)
	}

	sys := options.System
	if sys == nil {
		sys = &system.Limit{
			Allocator:         system.NewHeap(0),
			MaxAllocationSize: options.MaxAllocationSize,
		}
	}

	historySize := options.FreedHistory
	if historySize == 0 {
		historySize = DefaultFreedHistory
	}

	diagnostics := options.Diagnostics
	if diagnostics == nil {
		diagnostics = os.Stderr
	}

	output := options.Output
	if output == nil {
		output = os.Stdout
	}

	allocator := &Allocator{
		mutex:       utils.OptionalRWMutex{UseMutex: options.Flags&AllocatorCreateExternallySynchronized == 0},
		logger:      logger,
		createFlags: options.Flags,
		guardBytes:  guardBytes,
		diagnostics: diagnostics,
		output:      output,
		state: heapState{
			registry: metadata.NewRegistry(),
			history:  metadata.NewFreedHistory(historySize),
			base: basealloc.New(logger, sys, basealloc.Options{
				Seed:          options.Seed,
				ReuseAttempts: options.ReuseAttempts,
				ReusePercent:  options.ReusePercent,
			}),
		},
	}

	if options.Flags&AllocatorCreateDirectRelease != 0 {
		allocator.state.base.Disable(true)
	}

	logger.Debug("Allocator::New",
		slog.String("Flags", options.Flags.String()),
		slog.Int("GuardBytes", guardBytes),
		slog.Int("FreedHistory", allocator.state.history.Capacity()),
	)

	return allocator, nil
}
