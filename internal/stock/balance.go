package stock

import "fmt"

// Balance tracks one dimension of a stock record. Available is the on-hand
// amount, Reserved the portion already promised to open orders or batches.
// Reserving does not move Available; consumption deducts from Available
// directly, so Free reports what remains promisable.
type Balance struct {
	Available float64
	Reserved  float64
}

// Free returns the unpromised amount, clamped at zero.
func (b Balance) Free() float64 {
	free := b.Available - b.Reserved
	if free < 0 {
		return 0
	}
	return free
}

// Reserve moves amount into the reserved bucket. It fails when the available
// amount cannot cover the request.
func (b *Balance) Reserve(amount float64) error {
	if amount < 0 {
		return ErrInvalidQuantity
	}
	if b.Available < amount {
		return ErrInsufficientStock
	}
	b.Reserved += amount
	return nil
}

// Release returns reserved amount back to free. It clamps rather than erring:
// releasing more than is reserved zeroes the bucket and reports the amount
// actually released.
func (b *Balance) Release(amount float64) float64 {
	if amount < 0 {
		return 0
	}
	released := amount
	if released > b.Reserved {
		released = b.Reserved
	}
	b.Reserved -= released
	return released
}

// Deduct removes amount from Available. It fails when the deduction would
// drive the balance negative.
func (b *Balance) Deduct(amount float64) error {
	if amount < 0 {
		return ErrInvalidQuantity
	}
	if b.Available < amount {
		return ErrInsufficientStock
	}
	b.Available -= amount
	return nil
}

// Add credits amount to Available.
func (b *Balance) Add(amount float64) error {
	if amount < 0 {
		return ErrInvalidQuantity
	}
	b.Available += amount
	return nil
}

func (b Balance) String() string {
	return fmt.Sprintf("available=%.2f reserved=%.2f", b.Available, b.Reserved)
}
