package macro

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenClient struct {
	out string
	err error
}

func (c *fakeGenClient) Generate(_ context.Context, _ string) (string, error) {
	return c.out, c.err
}

var filterInput = []MarketMetadata{
	{EventID: "ev-1", Title: "Will the Fed cut rates in March?"},
	{EventID: "ev-2", Title: "Will Taylor Swift announce a tour?"},
	{EventID: "ev-3", Title: "Will AI chip export rules tighten?"},
}

func TestFilterKeepsSelectedIndices(t *testing.T) {
	f := NewTitleFilter(&fakeGenClient{out: "[0, 2]"}, zerolog.Nop())

	kept := f.Filter(context.Background(), filterInput)
	require.Len(t, kept, 2)
	assert.Equal(t, "ev-1", kept[0].EventID)
	assert.Equal(t, "ev-3", kept[1].EventID)
}

func TestFilterToleratesFencedResponse(t *testing.T) {
	f := NewTitleFilter(&fakeGenClient{out: "```json\n[1]\n```"}, zerolog.Nop())

	kept := f.Filter(context.Background(), filterInput)
	require.Len(t, kept, 1)
	assert.Equal(t, "ev-2", kept[0].EventID)
}

func TestFilterIgnoresOutOfRangeIndices(t *testing.T) {
	f := NewTitleFilter(&fakeGenClient{out: "[0, 7, -1]"}, zerolog.Nop())

	kept := f.Filter(context.Background(), filterInput)
	require.Len(t, kept, 1)
	assert.Equal(t, "ev-1", kept[0].EventID)
}

func TestFilterPassesThroughOnModelError(t *testing.T) {
	f := NewTitleFilter(&fakeGenClient{err: errors.New("quota")}, zerolog.Nop())

	kept := f.Filter(context.Background(), filterInput)
	assert.Equal(t, filterInput, kept)
}

func TestFilterPassesThroughOnGarbageResponse(t *testing.T) {
	f := NewTitleFilter(&fakeGenClient{out: "all of them look fine"}, zerolog.Nop())

	kept := f.Filter(context.Background(), filterInput)
	assert.Equal(t, filterInput, kept)
}
