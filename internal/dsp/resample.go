// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package dsp

import "math"

// Resample converts little-endian signed 16-bit PCM from inRate to outRate
// using windowed-sinc interpolation with an anti-alias low-pass applied
// ahead of any downsampling step. The output sample count is
// round(n*outRate/inRate), matching the length invariant every caller in
// the bridge depends on (silence in, silence out; no drift across frame
// boundaries when callers carry the fractional phase themselves).
func Resample(pcm []byte, inRate, outRate int) []byte {
	if inRate == outRate || len(pcm) < 2 {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}

	n := len(pcm) / 2
	in := make([]float64, n)
	for i := 0; i < n; i++ {
		in[i] = float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}

	if outRate < inRate {
		in = lowPassFIR(in, float64(outRate)/float64(inRate))
	}

	outN := int(math.Round(float64(n) * float64(outRate) / float64(inRate)))
	out := make([]byte, outN*2)
	ratio := float64(inRate) / float64(outRate)
	for i := 0; i < outN; i++ {
		srcPos := float64(i) * ratio
		s := sincSample(in, srcPos)
		v := int32(math.Round(s))
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[2*i] = byte(int16(v))
		out[2*i+1] = byte(int16(v) >> 8)
	}
	return out
}

// sincSample interpolates the value at fractional index pos using a small
// windowed-sinc kernel (4 taps either side), clamping at the buffer edges.
func sincSample(x []float64, pos float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	base := int(math.Floor(pos))
	frac := pos - float64(base)
	const halfWidth = 4
	var sum, wsum float64
	for k := -halfWidth + 1; k <= halfWidth; k++ {
		idx := base + k
		if idx < 0 || idx >= n {
			continue
		}
		d := float64(k) - frac
		w := sincWindowed(d, halfWidth)
		sum += x[idx] * w
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

func sincWindowed(x float64, halfWidth int) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	sinc := math.Sin(px) / px
	// Hann window over the kernel support.
	window := 0.5 * (1 + math.Cos(math.Pi*x/float64(halfWidth)))
	if math.Abs(x) >= float64(halfWidth) {
		return 0
	}
	return sinc * window
}

// lowPassFIR applies a short Hann-windowed sinc low-pass filter scaled to
// the given downsample ratio (cutoff at ratio*Nyquist), preventing aliasing
// before decimation.
func lowPassFIR(x []float64, ratio float64) []float64 {
	if ratio >= 1.0 {
		return x
	}
	const taps = 15
	half := taps / 2
	cutoff := ratio * 0.9
	kernel := make([]float64, taps)
	var sum float64
	for i := 0; i < taps; i++ {
		k := float64(i - half)
		var h float64
		if k == 0 {
			h = cutoff
		} else {
			h = math.Sin(math.Pi*cutoff*k) / (math.Pi * k)
		}
		window := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(taps-1)))
		h *= window
		kernel[i] = h
		sum += h
	}
	if sum != 0 {
		for i := range kernel {
			kernel[i] /= sum
		}
	}

	out := make([]float64, len(x))
	for i := range x {
		var acc float64
		for k := 0; k < taps; k++ {
			idx := i + k - half
			if idx < 0 || idx >= len(x) {
				continue
			}
			acc += x[idx] * kernel[k]
		}
		out[i] = acc
	}
	return out
}
