package packet

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnWriteReadPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientConn := NewConn(client)
	serverConn := NewConn(server)

	payload := []byte("hello binlog")

	errCh := make(chan error, 1)
	go func() {
		errCh <- clientConn.WritePacket(payload)
	}()

	got, err := serverConn.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoError(t, <-errCh)
}

func TestConnResetSequence(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientConn := NewConn(client)
	serverConn := NewConn(server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- clientConn.WritePacket([]byte("first"))
	}()
	_, err := serverConn.ReadPacket()
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	clientConn.ResetSequence()

	go func() {
		errCh <- clientConn.WritePacket([]byte("second"))
	}()
	got, err := serverConn.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
	require.NoError(t, <-errCh)
}

func TestConnWritePacketLargerThanMaxSplitsIntoChunks(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientConn := NewConn(client)
	serverConn := NewConn(server)

	payload := make([]byte, maxPacketSize+10)
	for i := range payload {
		payload[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- clientConn.WritePacket(payload)
	}()

	got, err := serverConn.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoError(t, <-errCh)
}
