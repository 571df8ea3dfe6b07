package flash_fill

import "bytes"

type InstructionType uint8

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeBorrow
	InstructionTypeRepay
)

// GetInstructionType identifies an instruction by its discriminator.
func GetInstructionType(data []byte) InstructionType {
	switch {
	case len(data) < len(borrowInstructionDiscriminator):
		return InstructionTypeUnknown
	case bytes.Equal(data[:len(borrowInstructionDiscriminator)], borrowInstructionDiscriminator):
		return InstructionTypeBorrow
	case bytes.Equal(data[:len(repayInstructionDiscriminator)], repayInstructionDiscriminator):
		return InstructionTypeRepay
	default:
		return InstructionTypeUnknown
	}
}

func (t InstructionType) String() string {
	switch t {
	case InstructionTypeBorrow:
		return "borrow"
	case InstructionTypeRepay:
		return "repay"
	}
	return "unknown"
}
