// Package embedding provides vector serialization, normalization, fusion,
// and similarity scoring for segment embeddings.
package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

const (
	TextModel   = "all-MiniLM-L6-v2"
	TextDim     = 384
	VisionModel = "clip-vit-b-32"
	VisionDim   = 512
	FusionModel = "fusion-0.6-0.4"

	TextWeight   = 0.6
	VisionWeight = 0.4
)

const (
	TypeText   = "text"
	TypeVision = "vision"
	TypeFusion = "fusion"
)

// Serialize packs a vector as flat little-endian IEEE-754 float32 bytes,
// no header or length prefix.
func Serialize(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Deserialize unpacks a blob written by Serialize. Returns nil if the
// blob length is not a multiple of 4.
func Deserialize(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// Normalize scales vec to unit length. A zero-norm vector is returned
// unchanged rather than dividing by zero.
func Normalize(vec []float32) []float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	norm := float32(math.Sqrt(float64(sum)))
	if norm == 0 {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// Fuse combines a text and a vision embedding into a single joint vector:
// both inputs are unit-normalized, truncated to the smaller dimension,
// summed with the given weights, and the result renormalized. A zero-norm
// result is returned as-is.
func Fuse(text, vision []float32, weightText, weightVision float32) []float32 {
	textNorm := Normalize(text)
	visionNorm := Normalize(vision)

	minDim := len(textNorm)
	if len(visionNorm) < minDim {
		minDim = len(visionNorm)
	}

	fused := make([]float32, minDim)
	for i := 0; i < minDim; i++ {
		fused[i] = weightText*textNorm[i] + weightVision*visionNorm[i]
	}

	var sum float32
	for _, v := range fused {
		sum += v * v
	}
	norm := float32(math.Sqrt(float64(sum)))
	if norm == 0 {
		return fused
	}
	for i := range fused {
		fused[i] /= norm
	}
	return fused
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or a zero-norm input score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CanonicalText builds the structured text that gets embedded for a
// segment. Only present fields contribute; an empty segment falls back
// to a generic placeholder so every segment embeds to something.
func CanonicalText(transcript, summary string, keywords []string) string {
	var parts []string
	if transcript != "" {
		parts = append(parts, fmt.Sprintf("spoken: %s", transcript))
	}
	if summary != "" {
		parts = append(parts, fmt.Sprintf("summary: %s", summary))
	}
	if len(keywords) > 0 {
		parts = append(parts, fmt.Sprintf("keywords: %s", strings.Join(keywords, ", ")))
	}
	if len(parts) == 0 {
		return "video segment"
	}
	return strings.Join(parts, "\n")
}
