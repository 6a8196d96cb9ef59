package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/discovery/mocks"
)

func peerChan(peers ...discovery.Peer) <-chan discovery.Peer {
	ch := make(chan discovery.Peer, len(peers))
	for _, p := range peers {
		ch <- p
	}
	close(ch)
	return ch
}

var testPeers = []discovery.Peer{
	{Name: "Ultron", Address: "0016531B594D"},
	{Name: "Bender", Address: "001653000001"},
	{Name: "Ultron-2", Address: "001653000002"},
	{Name: "ultra", Address: "001653000003"},
}

func TestSearchFiltersInTransportOrder(t *testing.T) {
	browser := mocks.NewMockBrowser(t)
	browser.EXPECT().Browse(mock.Anything).Return(peerChan(testPeers...), nil).Once()

	got, err := discovery.Search(context.Background(), browser, "Ultr")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "Ultron", got[0].Name)
	assert.Equal(t, "Ultron-2", got[1].Name)
	assert.Equal(t, len(got), cap(got), "result is sized to the match count")
}

func TestSearchEmptyFilterMatchesAll(t *testing.T) {
	browser := mocks.NewMockBrowser(t)
	browser.EXPECT().Browse(mock.Anything).Return(peerChan(testPeers...), nil)

	got, err := discovery.Search(context.Background(), browser, "")
	require.NoError(t, err)
	assert.Equal(t, testPeers, got)
}

func TestSearchNoMatches(t *testing.T) {
	browser := mocks.NewMockBrowser(t)
	browser.EXPECT().Browse(mock.Anything).Return(peerChan(testPeers...), nil)

	got, err := discovery.Search(context.Background(), browser, "R2D2")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearchEndsWithContext(t *testing.T) {
	open := make(chan discovery.Peer, 1)
	open <- discovery.Peer{Name: "Ultron", Address: "0016531B594D"}

	browser := mocks.NewMockBrowser(t)
	browser.EXPECT().Browse(mock.Anything).Return((<-chan discovery.Peer)(open), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	got, err := discovery.Search(ctx, browser, "Ult")
	require.NoError(t, err, "a search timing out is not an error")
	assert.Len(t, got, 1)
}

func TestSearchBrowseError(t *testing.T) {
	want := errors.New("no multicast interface")
	browser := mocks.NewMockBrowser(t)
	browser.EXPECT().Browse(mock.Anything).Return(nil, want)

	_, err := discovery.Search(context.Background(), browser, "")
	assert.ErrorIs(t, err, want)
}

func TestFindByAddress(t *testing.T) {
	browser := mocks.NewMockBrowser(t)
	browser.EXPECT().Browse(mock.Anything).RunAndReturn(func(ctx context.Context) (<-chan discovery.Peer, error) {
		return peerChan(testPeers...), nil
	}).Times(2)

	p, err := discovery.FindByAddress(context.Background(), browser, "00:16:53:00:00:02")
	require.NoError(t, err)
	assert.Equal(t, "Ultron-2", p.Name)

	_, err = discovery.FindByAddress(context.Background(), browser, "AABBCCDDEEFF")
	assert.ErrorIs(t, err, discovery.ErrNotFound)

	_, err = discovery.FindByAddress(context.Background(), browser, "bogus")
	assert.ErrorIs(t, err, discovery.ErrInvalidAddress)
}

func TestStaticTable(t *testing.T) {
	table, err := discovery.NewStaticTable(
		discovery.Peer{Name: "Ultron", Address: "00:16:53:1b:59:4d", Host: "10.0.0.7"},
		discovery.Peer{Name: "Bender", Address: "001653000001"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	p, ok := table.Lookup("0016531b594d")
	require.True(t, ok)
	assert.Equal(t, "Ultron", p.Name)
	assert.Equal(t, "0016531B594D", p.Address)
	assert.Equal(t, "10.0.0.7", p.Host)

	_, ok = table.Lookup("AABBCCDDEEFF")
	assert.False(t, ok)

	// Replacing keeps the original position.
	require.NoError(t, table.Add(discovery.Peer{Name: "Ultron II", Address: "0016531B594D"}))
	names := []string{}
	for _, p := range table.Peers() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Ultron II", "Bender"}, names)

	_, err = discovery.NewStaticTable(discovery.Peer{Name: "bad", Address: "xx"})
	assert.ErrorIs(t, err, discovery.ErrInvalidAddress)
}

func TestStaticTableSearch(t *testing.T) {
	table, err := discovery.NewStaticTable(testPeers...)
	require.NoError(t, err)

	got, err := discovery.Search(context.Background(), table, "Ultron")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ultron", got[0].Name)
	assert.Equal(t, "Ultron-2", got[1].Name)
}

func TestCombineDeduplicates(t *testing.T) {
	a := mocks.NewMockBrowser(t)
	a.EXPECT().Browse(mock.Anything).Return(peerChan(testPeers[0], testPeers[1]), nil)
	b := mocks.NewMockBrowser(t)
	b.EXPECT().Browse(mock.Anything).Return(peerChan(testPeers[1], testPeers[2]), nil)

	got, err := discovery.Search(context.Background(), discovery.Combine(a, b), "")
	require.NoError(t, err)

	addrs := map[string]int{}
	for _, p := range got {
		addrs[p.Address]++
	}
	assert.Equal(t, map[string]int{
		"0016531B594D": 1,
		"001653000001": 1,
		"001653000002": 1,
	}, addrs)
}

func TestCombineSkipsFailingBrowser(t *testing.T) {
	failing := mocks.NewMockBrowser(t)
	failing.EXPECT().Browse(mock.Anything).Return(nil, errors.New("down"))
	ok := mocks.NewMockBrowser(t)
	ok.EXPECT().Browse(mock.Anything).Return(peerChan(testPeers[0]), nil)

	got, err := discovery.Search(context.Background(), discovery.Combine(failing, ok), "")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	onlyFailing := mocks.NewMockBrowser(t)
	onlyFailing.EXPECT().Browse(mock.Anything).Return(nil, errors.New("down"))
	_, err = discovery.Search(context.Background(), discovery.Combine(onlyFailing), "")
	assert.Error(t, err)
}
