package bvh

// IDPool issues small sequential node ids and recycles released ones.
//
// Released ids are kept on a stack and handed out again before the counter
// grows, which keeps ids dense enough to index the bitsets in Marks. The zero
// value is ready to use. An IDPool is owned by a single tree and is not safe
// for concurrent use.
type IDPool struct {
	currentID uint32
	free      []uint32
}

// Allocate returns a recycled id if one is available, otherwise the next
// sequential id. Ids start at 1.
func (p *IDPool) Allocate() uint32 {
	if n := len(p.free); n != 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		return id
	}

	p.currentID++
	return p.currentID
}

// Release marks id as reusable.
func (p *IDPool) Release(id uint32) {
	p.free = append(p.free, id)
}

// Reset forgets every issued and released id.
func (p *IDPool) Reset() {
	p.currentID = 0
	p.free = p.free[:0]
}

// Issued returns the highest id handed out since the last reset.
func (p *IDPool) Issued() uint32 {
	return p.currentID
}

// Free returns the number of ids waiting to be reused.
func (p *IDPool) Free() int {
	return len(p.free)
}
