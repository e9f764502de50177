package code

// Block type immediates. Special block types have the high bit set; the operand stack height recorded by the decoder
// occupies bits 32-62.
const (
	BlockTypeSpecial = 0x8000000000000000
	BlockTypeMask    = 0x80000000ffffffff
	StackHeightMask  = 0x7fffffff00000000

	BlockTypeEmpty = 0x40 | BlockTypeSpecial
	BlockTypeI32   = 0x7f | BlockTypeSpecial
	BlockTypeI64   = 0x7e | BlockTypeSpecial
)
