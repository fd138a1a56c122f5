package eu

// Opcode is an EU instruction opcode.
type Opcode uint8

// Opcodes.
const (
	OpMOV   Opcode = 1
	OpSEL   Opcode = 2
	OpNOT   Opcode = 4
	OpAND   Opcode = 5
	OpOR    Opcode = 6
	OpXOR   Opcode = 7
	OpSHR   Opcode = 8
	OpSHL   Opcode = 9
	OpASR   Opcode = 12
	OpCMP   Opcode = 16
	OpIF    Opcode = 34
	OpELSE  Opcode = 36
	OpENDIF Opcode = 37
	OpSEND  Opcode = 49
	OpADD   Opcode = 64
	OpMUL   Opcode = 65
	OpFRC   Opcode = 67
	OpRNDU  Opcode = 68
	OpRNDD  Opcode = 69
	OpRNDE  Opcode = 70
	OpRNDZ  Opcode = 71
	OpMAC   Opcode = 72
	OpDP4   Opcode = 84
	OpDPH   Opcode = 85
	OpDP3   Opcode = 86
	OpLINE  Opcode = 89
	OpNOP   Opcode = 126
)

var opNames = map[Opcode]string{
	OpMOV: "mov", OpSEL: "sel", OpNOT: "not", OpAND: "and", OpOR: "or",
	OpXOR: "xor", OpSHR: "shr", OpSHL: "shl", OpASR: "asr", OpCMP: "cmp",
	OpIF: "if", OpELSE: "else", OpENDIF: "endif", OpSEND: "send",
	OpADD: "add", OpMUL: "mul", OpFRC: "frc", OpRNDU: "rndu", OpRNDD: "rndd",
	OpRNDE: "rnde", OpRNDZ: "rndz", OpMAC: "mac", OpDP4: "dp4", OpDPH: "dph",
	OpDP3: "dp3", OpLINE: "line", OpNOP: "nop",
}

// String returns the assembler mnemonic.
func (op Opcode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "illegal"
}

// NumSources returns how many register operands op reads.
func (op Opcode) NumSources() int {
	switch op {
	case OpNOP, OpIF, OpELSE, OpENDIF:
		return 0
	case OpMOV, OpNOT, OpFRC, OpRNDU, OpRNDD, OpRNDE, OpRNDZ, OpSEND:
		return 1
	default:
		return 2
	}
}

// File is a register file.
type File uint8

// Register files.
const (
	FileARF File = 0
	FileGRF File = 1
	FileMRF File = 2
	FileIMM File = 3
)

// Type is an operand data type.
type Type uint8

// Register types. Immediates reuse the encodings, with VF and V taking the
// slots of UB and B.
const (
	TypeUD Type = 0
	TypeD  Type = 1
	TypeUW Type = 2
	TypeW  Type = 3
	TypeUB Type = 4
	TypeB  Type = 5
	TypeF  Type = 7

	TypeVF Type = 5
	TypeV  Type = 6
)

var typeNames = [...]string{"UD", "D", "UW", "W", "UB", "B", "V", "F"}

// String returns the type suffix.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "?"
}

// Size returns the size of one element in bytes.
func (t Type) Size() uint32 {
	switch t {
	case TypeUW, TypeW:
		return 2
	case TypeUB, TypeB:
		return 1
	default:
		return 4
	}
}

// ARF register numbers.
const (
	ARFNull    = 0x00
	ARFAddress = 0x10
	ARFAcc     = 0x20
	ARFFlag    = 0x30
)

// AccessMode selects scalar-region or vec4 operand addressing.
type AccessMode uint8

// Access modes.
const (
	Align1  AccessMode = 0
	Align16 AccessMode = 1
)

// Predicate controls.
const (
	PredicateNone   = 0
	PredicateNormal = 1
)

// CondMod is a conditional modifier.
type CondMod uint8

// Conditional modifiers.
const (
	CondNone CondMod = 0
	CondZ    CondMod = 1
	CondNZ   CondMod = 2
	CondG    CondMod = 3
	CondGE   CondMod = 4
	CondL    CondMod = 5
	CondLE   CondMod = 6
)

var condNames = [...]string{"", "z", "nz", "g", "ge", "l", "le"}

// String returns the modifier suffix.
func (c CondMod) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "?"
}

// Mask controls.
const (
	MaskEnable  = 0
	MaskDisable = 1
)

// Compression controls.
const (
	CompressionNone       = 0
	CompressionSecondHalf = 1
	CompressionCompressed = 2
)

// Execution sizes, as encoded.
const (
	Exec1  = 0
	Exec2  = 1
	Exec4  = 2
	Exec8  = 3
	Exec16 = 4
)

// Region encodings.
const (
	VStride0  = 0
	VStride1  = 1
	VStride2  = 2
	VStride4  = 3
	VStride8  = 4
	VStride16 = 5
	VStride32 = 6

	Width1  = 0
	Width2  = 1
	Width4  = 2
	Width8  = 3
	Width16 = 4

	HStride0 = 0
	HStride1 = 1
	HStride2 = 2
	HStride4 = 3
)

// Address modes.
const (
	AddrDirect   = 0
	AddrIndirect = 1
)

// Write masks.
const (
	WriteX    = 1
	WriteY    = 2
	WriteZ    = 4
	WriteW    = 8
	WriteXYZ  = 7
	WriteXYZW = 0xf
)

// Swizzle channels.
const (
	X = 0
	Y = 1
	Z = 2
	W = 3
)

// Swizzle4 packs four channel selectors.
func Swizzle4(x, y, z, w uint8) uint8 {
	return x | y<<2 | z<<4 | w<<6
}

// SwizzleXYZW is the identity swizzle.
var SwizzleXYZW = Swizzle4(X, Y, Z, W)

// SwizzleGet returns the selector for channel ch.
func SwizzleGet(swz uint8, ch int) uint8 {
	return (swz >> (2 * ch)) & 3
}

// Shared-function ids of the SEND message target field.
const (
	TargetNull        = 0
	TargetMath        = 1
	TargetSampler     = 2
	TargetGateway     = 3
	TargetDataRead    = 4
	TargetDataWrite   = 5
	TargetURB         = 6
	TargetThreadSpawn = 7
)

// Math functions.
const (
	MathInv  = 1
	MathLog  = 2
	MathExp  = 3
	MathSqrt = 4
	MathRsq  = 5
	MathSin  = 6
	MathCos  = 7
	MathPow  = 10
)

// Math message options.
const (
	MathIntegerUnsigned  = 0
	MathPrecisionFull    = 0
	MathPrecisionPartial = 1
	MathSaturateNone     = 0
	MathDataVector       = 0
	MathDataScalar       = 1
)

// URB write swizzles.
const (
	URBSwizzleNone       = 0
	URBSwizzleInterleave = 1
	URBSwizzleTranspose  = 2
)

// Sampler message return format and type.
const (
	SamplerReturnFloat32 = 0
	SamplerMessageSample = 0
)

// Data port write controls.
const (
	DPRenderTargetSIMD8Low = 4
	DPWriteRenderTarget    = 4
)
