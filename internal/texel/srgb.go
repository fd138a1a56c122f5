package texel

import "math"

// linearToSRGBLUT encodes a linear component to an sRGB byte.
// 4096 entries give 12-bit precision, enough for 8-bit output.
var linearToSRGBLUT [4096]uint8

func init() {
	for i := range linearToSRGBLUT {
		linearToSRGBLUT[i] = LinearToSRGBSlow(float32(i) / 4095)
	}
}

// LinearToSRGB encodes a linear component in [0, 1] to sRGB using the
// lookup table. Input outside the range is clamped.
func LinearToSRGB(l float32) uint8 {
	l = min(max(l, 0), 1)
	return linearToSRGBLUT[int(l*4095+0.5)]
}

// LinearToSRGBSlow is the reference encoder the table is built from.
func LinearToSRGBSlow(l float32) uint8 {
	lf := math.Min(math.Max(float64(l), 0), 1)
	var s float64
	if lf <= 0.0031308 {
		s = lf * 12.92
	} else {
		s = 1.055*math.Pow(lf, 1.0/2.4) - 0.055
	}
	//nolint:gosec // G115: s is in [0,1]
	return uint8(math.Min(s*255+0.5, 255))
}

// SRGBToLinear decodes an sRGB byte.
func SRGBToLinear(s uint8) float32 {
	sf := float64(s) / 255
	if sf <= 0.04045 {
		return float32(sf / 12.92)
	}
	return float32(math.Pow((sf+0.055)/1.055, 2.4))
}

// Unorm8 converts a component in [0, 1] to an 8-bit unsigned normalized
// value with rounding. Input outside the range is clamped.
func Unorm8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
