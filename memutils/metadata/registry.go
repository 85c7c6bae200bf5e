package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/tidwall/btree"
	"github.com/vkngwrapper/dmalloc/memutils"
)

const registryDegree = 32

// ErrDuplicateBlock is returned from Registry.Insert when the address is already live
var ErrDuplicateBlock = errors.New("address is already registered")

// ErrOverlappingBlock is returned from Registry.Insert when the new block's byte range would overlap
// a live block
var ErrOverlappingBlock = errors.New("block overlaps a live block")

// Registry is the set of live blocks, ordered by address. No two blocks in the registry share an
// address or overlap.
type Registry struct {
	blocks *btree.Map[memutils.Address, *Block]
	bytes  uint64
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		blocks: btree.NewMap[memutils.Address, *Block](registryDegree),
	}
}

// Insert adds a live block. It fails without modifying the registry if the block's address is
// already live or its range would overlap a live block.
func (r *Registry) Insert(block *Block) error {
	if existing, ok := r.blocks.Get(block.Address); ok {
		return errors.Wrapf(ErrDuplicateBlock, "%s was allocated at %s", block.Address, existing.Site)
	}

	if prev := r.floor(block.Address); prev != nil && prev.End() > block.Address {
		return errors.Wrapf(ErrOverlappingBlock, "%s falls inside the %d byte block at %s", block.Address, prev.Size, prev.Address)
	}

	if next := r.ceiling(block.Address); next != nil && next.Address < block.End() {
		return errors.Wrapf(ErrOverlappingBlock, "%d bytes at %s run into the block at %s", block.Size, block.Address, next.Address)
	}

	r.blocks.Set(block.Address, block)
	r.bytes += block.Size
	return nil
}

// Remove removes the live block at addr, if there is one
func (r *Registry) Remove(addr memutils.Address) (*Block, bool) {
	block, ok := r.blocks.Delete(addr)
	if !ok {
		return nil, false
	}

	r.bytes -= block.Size
	return block, true
}

// Get retrieves the live block that starts at addr
func (r *Registry) Get(addr memutils.Address) (*Block, bool) {
	return r.blocks.Get(addr)
}

// Containing retrieves the live block that addr lies strictly inside of, if any. A block never
// contains its own start address.
func (r *Registry) Containing(addr memutils.Address) (*Block, bool) {
	block := r.floor(addr)
	if block == nil || !block.Contains(addr) {
		return nil, false
	}

	return block, true
}

// Len returns the number of live blocks
func (r *Registry) Len() int {
	return r.blocks.Len()
}

// Bytes returns the sum of the sizes of all live blocks
func (r *Registry) Bytes() uint64 {
	return r.bytes
}

// VisitAll calls visit once for each live block in ascending address order, stopping at the first
// error
func (r *Registry) VisitAll(visit func(block *Block) error) error {
	var err error
	r.blocks.Scan(func(_ memutils.Address, block *Block) bool {
		err = visit(block)
		return err == nil
	})

	return err
}

// Validate performs internal consistency checks on the registry
func (r *Registry) Validate() error {
	var prev *Block
	var calculatedBytes uint64

	err := r.VisitAll(func(block *Block) error {
		if uint64(len(block.Data)) < block.Size {
			return errors.Newf("block at %s has %d bytes of backing data but a size of %d", block.Address, len(block.Data), block.Size)
		}

		if memutils.AddressOf(block.Data) != block.Address {
			return errors.Newf("block at %s is backed by data at %s", block.Address, memutils.AddressOf(block.Data))
		}

		if prev != nil && prev.End() > block.Address {
			return errors.Newf("block at %s ends at %s, past the start of the block at %s", prev.Address, prev.End(), block.Address)
		}

		calculatedBytes += block.Size
		prev = block
		return nil
	})
	if err != nil {
		return err
	}

	if calculatedBytes != r.bytes {
		return errors.Newf("registry reports %d live bytes, but its blocks add up to %d", r.bytes, calculatedBytes)
	}

	return nil
}

// BlockJsonData populates a json object with summary information about the registry
func (r *Registry) BlockJsonData(json *jwriter.ObjectState) {
	json.Name("LiveBlocks").Int(r.Len())
	json.Name("LiveBytes").Int(int(r.bytes))
}

// PrintDetailedMap populates a json object with an array entry describing every live block
func (r *Registry) PrintDetailedMap(json *jwriter.ObjectState) {
	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	_ = r.VisitAll(func(block *Block) error {
		obj := arrayState.Object()
		defer obj.End()

		block.printParameters(&obj)
		return nil
	})
}

// floor returns the live block with the greatest address <= addr
func (r *Registry) floor(addr memutils.Address) *Block {
	var found *Block
	r.blocks.Descend(addr, func(_ memutils.Address, block *Block) bool {
		found = block
		return false
	})

	return found
}

// ceiling returns the live block with the least address >= addr
func (r *Registry) ceiling(addr memutils.Address) *Block {
	var found *Block
	r.blocks.Ascend(addr, func(_ memutils.Address, block *Block) bool {
		found = block
		return false
	})

	return found
}
