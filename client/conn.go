// Package client is the minimal query-execution collaborator the replication syncer uses
// for its handshake queries (SET NAMES, SHOW VARIABLES, SELECT @@server_id, and the
// final COM_REGISTER_SLAVE/COM_BINLOG_DUMP commands themselves all ride the same
// connection). It deliberately does not implement prepared statements, a binary-protocol
// resultset, or a field-list command: those belong to a full SQL driver, not a
// replication client, and database/sql + go-sql-driver/mysql remain available as a
// drop-in QueryExecutor for callers that want one (see client/sql_executor.go).
package client

import (
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
	"github.com/relaycore/mysql-binlog/packet"
)

// Option configures a Conn at Connect time.
type Option func(*Conn)

func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Conn) { c.tlsConfig = cfg }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Conn) { c.dialTimeout = d }
}

// Conn is a single connection speaking just enough of the handshake and text protocol
// to run the queries a replication client needs.
type Conn struct {
	*packet.Conn

	addr     string
	user     string
	password string
	db       string
	charset  string
	proto    string

	dialTimeout time.Duration
	tlsConfig   *tls.Config

	capability     uint32
	status         uint16
	salt           []byte
	authPluginName string
	connectionID   uint32
	serverVersion  string
}

// Connect dials addr (host:port, or a unix socket path when it contains no colon),
// performs the handshake, and returns an authenticated Conn.
func Connect(addr, user, password, dbName, charset string, options ...Option) (*Conn, error) {
	c := &Conn{
		addr:     addr,
		user:     user,
		password: password,
		db:       dbName,
		charset:  charset,
		proto:    "tcp",
	}
	if strings.Contains(addr, "/") {
		c.proto = "unix"
	}

	for _, o := range options {
		o(c)
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	nc, err := dialer.Dial(c.proto, addr)
	if err != nil {
		return nil, errors.Trace(err)
	}

	c.Conn = packet.NewConn(nc)

	if err := c.handshake(); err != nil {
		_ = nc.Close()
		return nil, errors.Trace(err)
	}

	return c, nil
}

// handshake reads the server's initial handshake packet, sends a HandshakeResponse41,
// and drives whatever auth-switch/caching_sha2/sha256 exchange the server asks for.
func (c *Conn) handshake() error {
	data, err := c.ReadPacket()
	if err != nil {
		return errors.Trace(err)
	}
	if data[0] == mysql.ERR_HEADER {
		return c.handleErrorPacket(data)
	}

	if err := c.parseInitialHandshake(data); err != nil {
		return errors.Trace(err)
	}

	auth, addNull, err := c.genAuthResponse(c.salt)
	if err != nil {
		return errors.Trace(err)
	}

	if err := c.writeHandshakeResponse(auth, addNull); err != nil {
		return errors.Trace(err)
	}

	return c.handleAuthResult()
}

func (c *Conn) parseInitialHandshake(data []byte) error {
	pos := 0

	protoVersion := data[pos]
	pos++
	if protoVersion < 10 {
		return errors.Errorf("invalid protocol version %d, must be >= 10", protoVersion)
	}

	idx := indexByte(data[pos:], 0)
	c.serverVersion = string(data[pos : pos+idx])
	pos += idx + 1

	c.connectionID = leUint32(data[pos:])
	pos += 4

	c.salt = append([]byte(nil), data[pos:pos+8]...)
	pos += 8 + 1 // +1 filler

	c.capability = uint32(leUint16(data[pos:]))
	pos += 2

	var charsetID byte
	var authPluginDataLen int
	if len(data) > pos {
		charsetID = data[pos]
		pos++

		c.status = leUint16(data[pos:])
		pos += 2

		c.capability |= uint32(leUint16(data[pos:])) << 16
		pos += 2

		authPluginDataLen = int(data[pos])
		pos++

		pos += 10 // reserved
	}
	_ = charsetID

	if c.capability&mysql.CLIENT_SECURE_CONNECTION > 0 {
		rest := authPluginDataLen - 8
		if rest < 13 {
			rest = 13
		}
		end := pos + rest - 1
		if end > len(data) {
			end = len(data)
		}
		c.salt = append(c.salt, data[pos:end]...)
		pos += rest
	}

	if c.capability&mysql.CLIENT_PLUGIN_AUTH > 0 {
		end := indexByte(data[pos:], 0)
		if end >= 0 {
			c.authPluginName = string(data[pos : pos+end])
		} else {
			c.authPluginName = string(data[pos:])
		}
	} else {
		c.authPluginName = mysql.AUTH_NATIVE_PASSWORD
	}

	return nil
}

// writeHandshakeResponse sends a protocol-41 HandshakeResponse with the given
// already-scrambled auth response.
func (c *Conn) writeHandshakeResponse(auth []byte, addNull bool) error {
	capability := mysql.CLIENT_PROTOCOL_41 | mysql.CLIENT_SECURE_CONNECTION |
		mysql.CLIENT_LONG_PASSWORD | mysql.CLIENT_TRANSACTIONS | mysql.CLIENT_PLUGIN_AUTH

	if c.db != "" {
		capability |= mysql.CLIENT_CONNECT_WITH_DB
	}
	if c.tlsConfig != nil {
		capability |= mysql.CLIENT_SSL
	}
	capability &= c.capability | capability

	length := 4 + 4 + 1 + 23 + len(c.user) + 1 + 1 + len(auth)
	if addNull {
		length++
	}
	if c.db != "" {
		length += len(c.db) + 1
	}
	length += len(c.authPluginName) + 1

	data := make([]byte, 0, length)
	data = append(data, byte(capability), byte(capability>>8), byte(capability>>16), byte(capability>>24))
	data = append(data, 0, 0, 0, 1) // max packet size
	data = append(data, 33)         // utf8mb4_general_ci
	data = append(data, make([]byte, 23)...)
	data = append(data, []byte(c.user)...)
	data = append(data, 0)

	data = append(data, byte(len(auth)))
	data = append(data, auth...)
	if addNull {
		data = append(data, 0)
	}

	if c.db != "" {
		data = append(data, []byte(c.db)...)
		data = append(data, 0)
	}

	data = append(data, []byte(c.authPluginName)...)
	data = append(data, 0)

	c.capability = capability
	return c.WritePacket(data)
}

// ConnectionID returns the server-assigned connection id from the handshake, the id a
// caller would pass to KILL to terminate this session from another connection.
func (c *Conn) ConnectionID() uint32 {
	return c.connectionID
}

// Ping issues COM_PING and waits for the OK packet.
func (c *Conn) Ping() error {
	if err := c.writeCommand(comPing, nil); err != nil {
		return errors.Trace(err)
	}
	_, err := c.readOK()
	return err
}

// Execute runs a single statement with the text protocol and returns its result; a
// SELECT-shaped statement also populates the embedded Resultset.
func (c *Conn) Execute(query string) (*mysql.Result, error) {
	if err := c.writeCommand(comQuery, []byte(query)); err != nil {
		return nil, errors.Trace(err)
	}
	return c.readResult(false)
}

// ExecuteSelectStreaming runs a SELECT with the text protocol and delivers rows to
// perRowCb as they arrive instead of buffering the whole resultset, for queries whose
// result is too large to hold in memory at once (a full table snapshot, say). perResCb,
// if non-nil, is invoked once with the column definitions before any row is delivered.
func (c *Conn) ExecuteSelectStreaming(query string, result *mysql.Result, perRowCb SelectPerRowCallback, perResCb SelectPerResultCallback) error {
	if err := c.writeCommand(comQuery, []byte(query)); err != nil {
		return errors.Trace(err)
	}
	return c.readResultStreaming(false, result, perRowCb, perResCb)
}

const (
	comQuery byte = 3
	comPing  byte = 14
)

func (c *Conn) writeCommand(cmd byte, arg []byte) error {
	c.ResetSequence()
	data := make([]byte, 0, 1+len(arg))
	data = append(data, cmd)
	data = append(data, arg...)
	return c.WritePacket(data)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
