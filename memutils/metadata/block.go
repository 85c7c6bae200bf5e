package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/dmalloc/memutils"
)

// Block is a single live allocation
type Block struct {
	// Address is the address returned to the caller
	Address memutils.Address
	// Size is the number of bytes the caller asked for
	Size uint64
	// Site is where the allocation was requested
	Site Site
	// Data is the memory backing the block: Size bytes of payload followed by any guard bytes
	Data []byte
}

// End returns the address one past the last byte of the block's payload
func (b *Block) End() memutils.Address {
	return b.Address.Add(b.Size)
}

// Contains reports whether addr lies strictly inside the block, i.e. after its first byte and
// before its end. Zero-length blocks contain nothing.
func (b *Block) Contains(addr memutils.Address) bool {
	return addr > b.Address && addr < b.End()
}

// Payload returns the caller-visible bytes of the block
func (b *Block) Payload() []byte {
	return b.Data[:b.Size:b.Size]
}

// Guard returns the guard bytes that follow the payload
func (b *Block) Guard() []byte {
	return b.Data[b.Size:]
}

func (b *Block) printParameters(json *jwriter.ObjectState) {
	json.Name("Address").String(b.Address.String())
	json.Name("Size").Int(int(b.Size))
	json.Name("Site").String(b.Site.String())
}
