package credcheck

import (
	"sync/atomic"

	"github.com/edirooss/tock-kernel/internal/process"
)

// ShortIDAllocator hands out process.ShortID{LocallyUnique: true} values.
// Kept as a type (rather than a bare constructor) so policies that admit
// processes without deriving an identity from their credentials all share
// one obviously-correct source, instead of each reinventing
// "just set LocallyUnique".
type ShortIDAllocator struct {
	_ uint32 // reserved; LocallyUnique ids carry no value, see ShortID.Conflicts
}

func NewShortIDAllocator() *ShortIDAllocator { return &ShortIDAllocator{} }

func (a *ShortIDAllocator) Next() process.ShortID {
	return process.ShortID{LocallyUnique: true}
}

// fixedIDCounter backs RedisPolicy's fallback path when a credential
// carries no usable identity payload but the policy still wants a
// deduplicatable (non-LocallyUnique) id.
var fixedIDCounter uint32

func nextFixedShortID() process.ShortID {
	return process.ShortID{Value: atomic.AddUint32(&fixedIDCounter, 1)}
}
