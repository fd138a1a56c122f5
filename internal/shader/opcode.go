package shader

// Opcode is an IR operation.
type Opcode uint8

// Opcodes. The set covers the vertex and fragment programs the compilers
// accept plus a few that parse but do not compile everywhere.
const (
	OpNOP Opcode = iota
	OpARL
	OpMOV
	OpLIT
	OpRCP
	OpRSQ
	OpEXP
	OpLOG
	OpMUL
	OpADD
	OpSUB
	OpDP3
	OpDP4
	OpDPH
	OpDST
	OpMIN
	OpMAX
	OpSLT
	OpSGE
	OpSEQ
	OpSNE
	OpSLE
	OpSGT
	OpMAD
	OpFRC
	OpFLR
	OpEX2
	OpLG2
	OpPOW
	OpXPD
	OpABS
	OpSWZ
	OpSIN
	OpCOS
	OpCMP
	OpKIL
	OpTEX
	OpEND
	numOpcodes
)

type opcodeInfo struct {
	name string
	srcs int
	dst  bool
}

var opcodeTable = [numOpcodes]opcodeInfo{
	OpNOP: {"NOP", 0, false},
	OpARL: {"ARL", 1, true},
	OpMOV: {"MOV", 1, true},
	OpLIT: {"LIT", 1, true},
	OpRCP: {"RCP", 1, true},
	OpRSQ: {"RSQ", 1, true},
	OpEXP: {"EXP", 1, true},
	OpLOG: {"LOG", 1, true},
	OpMUL: {"MUL", 2, true},
	OpADD: {"ADD", 2, true},
	OpSUB: {"SUB", 2, true},
	OpDP3: {"DP3", 2, true},
	OpDP4: {"DP4", 2, true},
	OpDPH: {"DPH", 2, true},
	OpDST: {"DST", 2, true},
	OpMIN: {"MIN", 2, true},
	OpMAX: {"MAX", 2, true},
	OpSLT: {"SLT", 2, true},
	OpSGE: {"SGE", 2, true},
	OpSEQ: {"SEQ", 2, true},
	OpSNE: {"SNE", 2, true},
	OpSLE: {"SLE", 2, true},
	OpSGT: {"SGT", 2, true},
	OpMAD: {"MAD", 3, true},
	OpFRC: {"FRC", 1, true},
	OpFLR: {"FLR", 1, true},
	OpEX2: {"EX2", 1, true},
	OpLG2: {"LG2", 1, true},
	OpPOW: {"POW", 2, true},
	OpXPD: {"XPD", 2, true},
	OpABS: {"ABS", 1, true},
	OpSWZ: {"SWZ", 1, true},
	OpSIN: {"SIN", 1, true},
	OpCOS: {"COS", 1, true},
	OpCMP: {"CMP", 3, true},
	OpKIL: {"KIL", 1, false},
	OpTEX: {"TEX", 2, true},
	OpEND: {"END", 0, false},
}

func opInfo(op Opcode) (opcodeInfo, bool) {
	if op >= numOpcodes {
		return opcodeInfo{}, false
	}
	return opcodeTable[op], true
}

// String returns the assembler mnemonic.
func (op Opcode) String() string {
	if info, ok := opInfo(op); ok {
		return info.name
	}
	return "UNKNOWN"
}

// NumSrc returns the number of source operands of op.
func (op Opcode) NumSrc() int {
	info, _ := opInfo(op)
	return info.srcs
}

// HasDst reports whether op writes a destination.
func (op Opcode) HasDst() bool {
	info, _ := opInfo(op)
	return info.dst
}

// LookupOpcode returns the opcode with mnemonic name.
func LookupOpcode(name string) (Opcode, bool) {
	for i, info := range opcodeTable {
		if info.name == name {
			return Opcode(i), true
		}
	}
	return 0, false
}
