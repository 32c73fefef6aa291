package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const upstreamFrames = "data: {\"choices\":[{\"delta\":{\"content\":\"100\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"k-120k\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" ;; high ;; strong demand\"}}]}\n\n" +
	"data: [DONE]\n\n"

func TestAdapterExtractsFragmentsInOrder(t *testing.T) {
	a := NewAdapter()

	fragments := a.Fragments([]byte(upstreamFrames))

	assert.Equal(t, []string{"100", "k-120k", " ;; high ;; strong demand"}, fragments)
	assert.Equal(t, "100k-120k ;; high ;; strong demand", strings.Join(fragments, ""))
	assert.True(t, a.Done())
	assert.Zero(t, a.Malformed)
}

func TestAdapterSkipsMalformedFrame(t *testing.T) {
	a := NewAdapter()
	frames := "data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n"

	fragments := a.Fragments([]byte(frames))

	assert.Equal(t, []string{"one", "two"}, fragments)
	assert.Equal(t, 1, a.Malformed)
}

func TestAdapterHandlesFrameSplitAcrossChunks(t *testing.T) {
	a := NewAdapter()

	var fragments []string
	for _, b := range []byte(upstreamFrames) {
		fragments = append(fragments, a.Fragments([]byte{b})...)
	}

	assert.Equal(t, []string{"100", "k-120k", " ;; high ;; strong demand"}, fragments)
	assert.True(t, a.Done())
}

func TestAdapterIgnoresNonDataLines(t *testing.T) {
	a := NewAdapter()
	frames := "event: ping\n" +
		": keepalive comment\n" +
		"\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"

	assert.Equal(t, []string{"x"}, a.Fragments([]byte(frames)))
	assert.Zero(t, a.Malformed)
}

func TestAdapterStopsEmittingAfterSentinel(t *testing.T) {
	a := NewAdapter()
	frames := "data: {\"choices\":[{\"delta\":{\"content\":\"before\"}}]}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"after\"}}]}\n\n"

	assert.Equal(t, []string{"before"}, a.Fragments([]byte(frames)))
	assert.True(t, a.Done())
}

func TestAdapterSkipsEmptyDeltas(t *testing.T) {
	a := NewAdapter()
	frames := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"

	assert.Equal(t, []string{"hi"}, a.Fragments([]byte(frames)))
	assert.Zero(t, a.Malformed)
}

func TestAdapterCarriesCRLF(t *testing.T) {
	a := NewAdapter()
	frames := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\r\n\r\n"

	assert.Equal(t, []string{"x"}, a.Fragments([]byte(frames)))
}

func TestEventFormat(t *testing.T) {
	assert.Equal(t, "data: 100k\n\n", string(Event("100k")))
}
