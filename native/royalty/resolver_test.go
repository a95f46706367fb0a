package royalty

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubStore struct {
	data map[[20]byte][]byte
	err  error
}

func (s *stubStore) GetData(collection [20]byte, key [32]byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if key != RecipientsKey {
		return nil, nil
	}
	return s.data[collection], nil
}

func testCollection(t *testing.T) [20]byte {
	t.Helper()
	raw, err := hex.DecodeString("5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, err)
	var out [20]byte
	copy(out[:], raw)
	return out
}

func TestResolveRoundTrip(t *testing.T) {
	collection := testCollection(t)
	record := Record{
		Selector:  [4]byte{0x12, 0x34, 0x56, 0x78},
		Recipient: collection,
		ShareBps:  15000,
	}
	store := &stubStore{data: map[[20]byte][]byte{
		collection: Encode(record),
	}}

	records, err := NewResolver(store).Resolve(collection)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, record, records[0])
}

func TestResolveMultipleRecords(t *testing.T) {
	collection := testCollection(t)
	first := Record{Selector: [4]byte{0xaa, 0xbb, 0xcc, 0xdd}, ShareBps: 500}
	first.Recipient[19] = 0x01
	second := Record{ShareBps: 250}
	second.Recipient[19] = 0x02
	store := &stubStore{data: map[[20]byte][]byte{
		collection: Encode(first, second),
	}}

	records, err := NewResolver(store).Resolve(collection)
	require.NoError(t, err)
	require.Equal(t, []Record{first, second}, records)
}

func TestResolveEmptyPayload(t *testing.T) {
	collection := testCollection(t)
	store := &stubStore{data: map[[20]byte][]byte{}}

	records, err := NewResolver(store).Resolve(collection)
	require.NoError(t, err)
	require.Nil(t, records)
}

func TestResolveMalformedLength(t *testing.T) {
	collection := testCollection(t)
	record := Record{ShareBps: 100}
	payload := Encode(record)
	store := &stubStore{data: map[[20]byte][]byte{
		collection: payload[:len(payload)-1],
	}}

	_, err := NewResolver(store).Resolve(collection)
	require.ErrorIs(t, err, ErrMalformedRoyaltyData)
}

func TestResolveStoreError(t *testing.T) {
	storeErr := errors.New("backend offline")
	store := &stubStore{err: storeErr}

	_, err := NewResolver(store).Resolve(testCollection(t))
	require.ErrorIs(t, err, storeErr)
}

func TestResolveNilStore(t *testing.T) {
	_, err := NewResolver(nil).Resolve(testCollection(t))
	require.Error(t, err)
}

func TestResolveShareAboveFullSale(t *testing.T) {
	// Shares above 10000 bps decode verbatim; enforcement happens at
	// settlement, not here.
	collection := testCollection(t)
	record := Record{ShareBps: 60000}
	store := &stubStore{data: map[[20]byte][]byte{
		collection: Encode(record),
	}}

	records, err := NewResolver(store).Resolve(collection)
	require.NoError(t, err)
	require.Equal(t, uint32(60000), records[0].ShareBps)
}
