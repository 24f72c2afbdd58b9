package wire

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/oxidex/peerpool/address"
	"github.com/stretchr/testify/require"
)

func samplePackets() []*Packet {
	hdr := NewHeader()
	reqHdr := NewResponseHeader(hdr.ID)
	ns := NodeStateBody{
		Addresses:        []address.Address{address.New("203.0.113.5", 9735), address.New("abc123xyz.onion", 9735)},
		Pairs:            []string{"BTC/ETH", "LTC/BTC"},
		AuxIdentifiers:   map[string]string{"chain": "BTC"},
		AuxPubKeys:       map[string]string{"chain": "02aa"},
		AuxUris:          map[string][]string{"chain": {"10.0.0.1:9000"}},
		TokenIdentifiers: map[string]string{"ETH": "0xdead"},
	}
	return []*Packet{
		{Header: hdr, Body: &Hello{Version: "1.2.3", NodePubKey: []byte("pub"), Signature: []byte("sig"), Nonce: bytes.Repeat([]byte{7}, 32), NodeState: ns}},
		{Header: hdr, Body: &SessionInitAck{}},
		{Header: hdr, Body: &Ping{}},
		{Header: reqHdr, Body: &Pong{}},
		{Header: hdr, Body: &Disconnecting{Reason: DiscResponseStalling, Payload: []byte("stalled")}},
		{Header: hdr, Body: &Order{PairID: "BTC/ETH", Payload: []byte{1, 2, 3}}},
		{Header: hdr, Body: &OrderInvalidation{OrderID: "o1", PairID: "BTC/ETH"}},
		{Header: hdr, Body: &GetOrders{PairIDs: []string{"BTC/ETH"}}},
		{Header: reqHdr, Body: &Orders{Payload: []byte{9, 9}}},
		{Header: hdr, Body: &GetNodes{}},
		{Header: reqHdr, Body: &Nodes{Entries: []NodeEntry{{PubKey: []byte("abc"), Addresses: []address.Address{address.New("1.2.3.4", 1)}}}}},
		{Header: hdr, Body: &NodeStateUpdate{NodeState: ns}},
		{Header: hdr, Body: &SanitySwapInit{Payload: []byte("s")}},
		{Header: hdr, Body: &SwapRequest{Payload: []byte("r")}},
		{Header: hdr, Body: &SwapAccepted{Payload: []byte("a")}},
		{Header: hdr, Body: &SwapFailed{Payload: []byte("f")}},
	}
}

func TestFramerRoundTrip(t *testing.T) {
	for _, p := range samplePackets() {
		t.Run(p.Type().String(), func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFramer(&buf)
			require.NoError(t, f.WritePacket(p))

			got, err := f.ReadPacket()
			require.NoError(t, err)
			require.Equal(t, p.Header.ID, got.Header.ID)
			if p.Header.ReqID != nil {
				require.NotNil(t, got.Header.ReqID)
				require.Equal(t, *p.Header.ReqID, *got.Header.ReqID)
			} else {
				require.Nil(t, got.Header.ReqID)
			}
			require.Equal(t, p.Body, got.Body)
		})
	}
}

func TestFramerMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf)
	pkts := samplePackets()
	for _, p := range pkts {
		require.NoError(t, f.WritePacket(p))
	}
	for _, want := range pkts {
		got, err := f.ReadPacket()
		require.NoError(t, err)
		require.Equal(t, want.Body, got.Body)
	}
}

func TestFramerRejectsOversizeFrame(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, headerLen)
	for i := range lenBuf {
		lenBuf[i] = 0xff
	}
	buf.Write(lenBuf)
	f := NewFramer(&buf)
	_, err := f.ReadPacket()
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFramerRejectsUnknownType(t *testing.T) {
	e := newEncoder()
	e.u8(250)
	id := uuid.New()
	e.rawBytes(id[:])
	e.bool(false)
	_, err := decodePacket(e.bytes())
	require.Error(t, err)
}

func TestFramerUnexpectedEOF(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10}) // announce 10 bytes, write none
	f := NewFramer(&buf)
	_, err := f.ReadPacket()
	require.ErrorIs(t, err, ErrUnexpectedEOF)
}
