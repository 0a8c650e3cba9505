package msgs

// BlockSize is the SZX size class of a Block1/Block2 option.
type BlockSize byte

// Block sizes.
const (
	Block16 BlockSize = iota
	Block32
	Block64
	Block128
	Block256
	Block512
	Block1024
	// BlockBERT carries multiples of 1024 bytes per message (RFC 8323 §6).
	BlockBERT
)

// Bytes returns the size in bytes, the BERT unit for BlockBERT.
func (s BlockSize) Bytes() int {
	if s >= BlockBERT {
		return 1024
	}
	return 16 << s
}

// IsBERT indicates the bulk size class.
func (s BlockSize) IsBERT() bool {
	return s == BlockBERT
}

// BlockSizeFor selects the largest size class fitting in n bytes.
// BlockBERT is selected only when bert is set and n exceeds 1024.
func BlockSizeFor(n int, bert bool) BlockSize {
	if bert && n > 1024 {
		return BlockBERT
	}
	s := Block1024
	for s > Block16 && s.Bytes() > n {
		s--
	}
	return s
}

// Block is the decoded value of a Block1/Block2 option.
type Block struct {
	Num  uint32
	More bool
	Size BlockSize
}

// ParseBlock decodes an option value.
func ParseBlock(v uint32) Block {
	return Block{
		Num:  v >> 4,
		More: v&0x08 != 0,
		Size: BlockSize(v & 0x07),
	}
}

// Value encodes the block as an option value.
func (b Block) Value() uint32 {
	v := b.Num<<4 | uint32(b.Size&0x07)
	if b.More {
		v |= 0x08
	}
	return v
}

// Offset returns the byte offset of the block.
func (b Block) Offset() int {
	return int(b.Num) * b.Size.Bytes()
}

// BlockContext tracks one direction of a block-wise transfer.
// Current never exceeds Total once Total is known.
type BlockContext struct {
	Size    BlockSize
	Current int
	Total   int
}

// Init starts a transfer.
func (c *BlockContext) Init(size BlockSize, total int) {
	c.Size, c.Current, c.Total = size, 0, total
}

// Reset clears the context.
func (c *BlockContext) Reset() {
	*c = BlockContext{}
}

// Active indicates a transfer has been started.
func (c *BlockContext) Active() bool {
	return c.Total > 0 || c.Current > 0
}

// Finished indicates all bytes are transferred.
func (c *BlockContext) Finished() bool {
	return c.Total > 0 && c.Current >= c.Total
}

// Block builds the option for the block starting at Current.
func (c *BlockContext) Block(more bool) Block {
	return Block{
		Num:  uint32(c.Current / c.Size.Bytes()),
		More: more,
		Size: c.Size,
	}
}

// Advance moves Current forward by n bytes.
func (c *BlockContext) Advance(n int) {
	c.Current += n
	if c.Total > 0 && c.Current > c.Total {
		c.Current = c.Total
	}
}

// Update positions the context at a received block.
// A smaller size class proposed by the peer is adopted.
func (c *BlockContext) Update(b Block, total int) {
	if b.Size < c.Size || !c.Active() {
		c.Size = b.Size
	}
	if total > 0 {
		c.Total = total
	}
	c.Current = int(b.Num) * b.Size.Bytes()
	if c.Total > 0 && c.Current > c.Total {
		c.Current = c.Total
	}
}
