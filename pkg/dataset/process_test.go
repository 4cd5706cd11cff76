package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProcessRejectsDuplicates(t *testing.T) {
	a := &Descriptor{Name: "/A/B/C"}
	b := &Descriptor{Name: "/A/B/C"}

	_, err := NewProcess(a, b)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestProcessChunksFlattensInInsertionOrder(t *testing.T) {
	a := &Descriptor{Name: "/A/B/C", Files: []string{"a1.root", "a2.root"}}
	b := &Descriptor{Name: "/X/Y/Z", Files: []string{"b1.root", "b2.root"}}

	p, err := NewProcess(a, b)
	require.NoError(t, err)

	it := p.Chunks(context.Background())
	var urls []string
	for it.Next() {
		urls = append(urls, it.At().URLs...)
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"a1.root", "a2.root", "b1.root", "b2.root"}, urls)
}

func TestProcessSelectIsCopyOnWrite(t *testing.T) {
	a := &Descriptor{Name: "/A/B/C", Files: []string{"a.root"}, Selection: "met_pt > 170"}
	b := &Descriptor{Name: "/X/Y/Z", Files: []string{"b.root"}}

	p, err := NewProcess(a, b)
	require.NoError(t, err)

	narrowed := p.Select("njets >= 2")

	require.Equal(t, "met_pt > 170", a.Selection, "original descriptor must not change")
	require.Equal(t, "", b.Selection)

	ds := narrowed.Datasets()
	require.Equal(t, "(met_pt > 170)&&(njets >= 2)", ds[0].Selection)
	require.Equal(t, "njets >= 2", ds[1].Selection)

	// Narrowing again composes onto the already narrowed copies.
	again := narrowed.Select("nbjets >= 1")
	require.Equal(t, "((met_pt > 170)&&(njets >= 2))&&(nbjets >= 1)", again.Datasets()[0].Selection)
	require.Equal(t, "(met_pt > 170)&&(njets >= 2)", ds[0].Selection)
}

func TestProcessChunksPropagatesMemberError(t *testing.T) {
	good := &Descriptor{Name: "/A/B/C", Files: []string{"a.root"}}
	bad := &Descriptor{Name: "/bad-name"}

	p, err := NewProcess(good, bad)
	require.NoError(t, err)

	it := p.Chunks(context.Background())
	require.True(t, it.Next())
	require.False(t, it.Next())
	require.Error(t, it.Err())
}
