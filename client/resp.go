package client

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
	"github.com/relaycore/mysql-binlog/utils"
)

// readUntilEOF discards packets until an EOF packet is seen, used to skip a resultset a
// caller decided it doesn't need after all.
func (c *Conn) readUntilEOF() error {
	for {
		data, err := c.ReadPacket()
		if err != nil {
			return err
		}
		if c.isEOFPacket(data) {
			return nil
		}
	}
}

func (c *Conn) isEOFPacket(data []byte) bool {
	return data[0] == mysql.EOF_HEADER && len(data) <= 5
}

// handleOKPacket parses an OK packet's affected-rows/insert-id/status/warnings fields.
// The trailing info string is not surfaced; nothing in this client reads it.
func (c *Conn) handleOKPacket(data []byte) (*mysql.Result, error) {
	pos := 1
	result := mysql.NewResultReserveResultset(0)

	var n int
	result.AffectedRows, _, n = mysql.LengthEncodedInt(data[pos:])
	pos += n
	result.InsertId, _, n = mysql.LengthEncodedInt(data[pos:])
	pos += n

	switch {
	case c.capability&mysql.CLIENT_PROTOCOL_41 > 0:
		result.Status = binary.LittleEndian.Uint16(data[pos:])
		c.status = result.Status
		pos += 2
		result.Warnings = binary.LittleEndian.Uint16(data[pos:])
	case c.capability&mysql.CLIENT_TRANSACTIONS > 0:
		result.Status = binary.LittleEndian.Uint16(data[pos:])
		c.status = result.Status
	}

	return result, nil
}

// handleErrorPacket turns an ERR packet into a *mysql.MyError carrying the server's SQL
// state and message.
func (c *Conn) handleErrorPacket(data []byte) error {
	pos := 1

	myErr := &mysql.MyError{
		Code: binary.LittleEndian.Uint16(data[pos:]),
	}
	pos += 2

	if c.capability&mysql.CLIENT_PROTOCOL_41 > 0 {
		pos++ // '#' marker
		myErr.State = utils.ByteSliceToString(data[pos : pos+5])
		pos += 5
	}
	myErr.Message = utils.ByteSliceToString(data[pos:])

	return myErr
}

// handleAuthResult drives whatever the server demands after the initial
// HandshakeResponse: a plain OK, an auth-plugin switch, or a caching_sha2_password /
// sha256_password continuation.
func (c *Conn) handleAuthResult() error {
	data, switchToPlugin, err := c.readAuthResult()
	if err != nil {
		return fmt.Errorf("readAuthResult: %w", err)
	}

	if switchToPlugin != "" {
		if data == nil {
			data = c.salt
		} else {
			copy(c.salt, data)
		}
		c.authPluginName = switchToPlugin

		auth, addNull, err := c.genAuthResponse(data)
		if err != nil {
			return err
		}
		if err := c.WriteAuthSwitchPacket(auth, addNull); err != nil {
			return err
		}

		data, switchToPlugin, err = c.readAuthResult()
		if err != nil {
			return err
		}
		if switchToPlugin != "" {
			return errors.Errorf("server requested a second auth plugin switch, not supported")
		}
	}

	return c.finishCachingAuth(data)
}

// finishCachingAuth handles the continuation packet for caching_sha2_password (fast-auth
// byte or full-auth request) and sha256_password (RSA public key exchange). data is nil
// or empty when the server already accepted the initial response.
func (c *Conn) finishCachingAuth(data []byte) error {
	switch c.authPluginName {
	case mysql.AUTH_CACHING_SHA2_PASSWORD:
		if data == nil {
			return nil
		}
		switch data[0] {
		case mysql.CACHE_SHA2_FAST_AUTH:
			_, err := c.readOK()
			return err
		case mysql.CACHE_SHA2_FULL_AUTH:
			if c.tlsConfig != nil || c.proto == "unix" {
				if err := c.WriteClearAuthPacket(c.password); err != nil {
					return err
				}
			} else if err := c.WritePublicKeyAuthPacket(c.password, c.salt); err != nil {
				return err
			}
			_, err := c.readOK()
			return err
		default:
			return errors.Errorf("invalid caching_sha2_password continuation byte %x", data[0])
		}

	case mysql.AUTH_SHA256_PASSWORD:
		if len(data) == 0 {
			return nil
		}
		block, _ := pem.Decode(data)
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return err
		}
		if err := c.WriteEncryptedPassword(c.password, c.salt, pub.(*rsa.PublicKey)); err != nil {
			return err
		}
		_, err = c.readOK()
		return err
	}

	return nil
}

// readAuthResult reads one packet from the auth exchange and classifies it: an OK ends
// the exchange, an auth-switch-request packet returns the new plugin name and its seed
// data, and anything else is an error.
func (c *Conn) readAuthResult() (data []byte, plugin string, err error) {
	data, err = c.ReadPacket()
	if err != nil {
		return nil, "", fmt.Errorf("ReadPacket: %w", err)
	}

	switch data[0] {
	case mysql.OK_HEADER:
		_, err := c.handleOKPacket(data)
		return nil, "", err

	case mysql.MORE_DATE_HEADER:
		return data[1:], "", nil

	case mysql.EOF_HEADER:
		if len(data) < 1 {
			return nil, mysql.AUTH_MYSQL_OLD_PASSWORD, nil
		}
		end := bytes.IndexByte(data, 0x00)
		if end < 0 {
			return nil, "", errors.New("malformed auth switch request packet")
		}
		return data[end+1:], string(data[1:end]), nil

	default:
		return nil, "", c.handleErrorPacket(data)
	}
}

func (c *Conn) readOK() (*mysql.Result, error) {
	data, err := c.ReadPacket()
	if err != nil {
		return nil, errors.Trace(err)
	}

	switch data[0] {
	case mysql.OK_HEADER:
		return c.handleOKPacket(data)
	case mysql.ERR_HEADER:
		return nil, c.handleErrorPacket(data)
	default:
		return nil, errors.New("expected an OK or ERR packet")
	}
}

// readResult reads one command response, buffering a resultset's rows in full before
// returning.
func (c *Conn) readResult(binaryProto bool) (*mysql.Result, error) {
	buf := utils.ByteSliceGet(16)
	defer utils.ByteSlicePut(buf)

	var err error
	buf.B, err = c.ReadPacketReuseMem(buf.B[:0])
	if err != nil {
		return nil, errors.Trace(err)
	}

	switch buf.B[0] {
	case mysql.OK_HEADER:
		return c.handleOKPacket(buf.B)
	case mysql.ERR_HEADER:
		return nil, c.handleErrorPacket(bytes.Clone(buf.B))
	case mysql.LocalInFile_HEADER:
		return nil, mysql.ErrMalformPacket
	default:
		return c.readResultset(buf.B, binaryProto)
	}
}

// readResultStreaming is readResult's streaming counterpart: instead of collecting every
// row into result.Values, it hands each decoded row to perRowCb as it arrives, so a
// caller can process an arbitrarily large SELECT without buffering it.
func (c *Conn) readResultStreaming(binaryProto bool, result *mysql.Result, perRowCb SelectPerRowCallback, perResCb SelectPerResultCallback) error {
	buf := utils.ByteSliceGet(16)
	defer utils.ByteSlicePut(buf)

	var err error
	buf.B, err = c.ReadPacketReuseMem(buf.B[:0])
	if err != nil {
		return errors.Trace(err)
	}

	switch buf.B[0] {
	case mysql.OK_HEADER:
		// A resultset with zero columns arrives as a plain OK packet rather than a
		// column-count + rows sequence.
		okResult, err := c.handleOKPacket(buf.B)
		if err != nil {
			return errors.Trace(err)
		}

		result.Status = okResult.Status
		result.AffectedRows = okResult.AffectedRows
		result.InsertId = okResult.InsertId
		result.Warnings = okResult.Warnings
		if result.Resultset == nil {
			result.Resultset = mysql.NewResultset(0)
		} else {
			result.Reset(0)
		}
		return nil

	case mysql.ERR_HEADER:
		return c.handleErrorPacket(bytes.Clone(buf.B))
	case mysql.LocalInFile_HEADER:
		return mysql.ErrMalformPacket
	default:
		return c.readResultsetStreaming(buf.B, binaryProto, result, perRowCb, perResCb)
	}
}

func (c *Conn) readResultset(data []byte, binaryProto bool) (*mysql.Result, error) {
	columnCount, _, n := mysql.LengthEncodedInt(data)
	if n-len(data) != 0 {
		return nil, mysql.ErrMalformPacket
	}

	result := mysql.NewResultReserveResultset(int(columnCount))

	if err := c.readResultColumns(result); err != nil {
		return nil, errors.Trace(err)
	}
	if err := c.readResultRows(result, binaryProto); err != nil {
		return nil, errors.Trace(err)
	}

	return result, nil
}

func (c *Conn) readResultsetStreaming(data []byte, binaryProto bool, result *mysql.Result, perRowCb SelectPerRowCallback, perResCb SelectPerResultCallback) error {
	columnCount, _, n := mysql.LengthEncodedInt(data)
	if n-len(data) != 0 {
		return mysql.ErrMalformPacket
	}

	if result.Resultset == nil {
		result.Resultset = mysql.NewResultset(int(columnCount))
	} else {
		result.Reset(int(columnCount))
	}
	result.Streaming = mysql.StreamingSelect

	if err := c.readResultColumns(result); err != nil {
		return errors.Trace(err)
	}

	if perResCb != nil {
		if err := perResCb(result); err != nil {
			return err
		}
	}

	if err := c.readResultRowsStreaming(result, binaryProto, perRowCb); err != nil {
		return errors.Trace(err)
	}
	result.StreamingDone = true

	return nil
}

func (c *Conn) readResultColumns(result *mysql.Result) error {
	i := 0

	for {
		before := len(result.RawPkg)
		raw, err := c.ReadPacketReuseMem(result.RawPkg)
		if err != nil {
			return err
		}
		result.RawPkg = raw
		data := result.RawPkg[before:]

		if c.isEOFPacket(data) {
			if c.capability&mysql.CLIENT_PROTOCOL_41 > 0 {
				result.Warnings = binary.LittleEndian.Uint16(data[1:])
				result.Status = binary.LittleEndian.Uint16(data[3:])
				c.status = result.Status
			}
			if i != len(result.Fields) {
				return mysql.ErrMalformPacket
			}
			return nil
		}

		if result.Fields[i] == nil {
			result.Fields[i] = &mysql.Field{}
		}
		if err := result.Fields[i].Parse(data); err != nil {
			return err
		}
		result.FieldNames[utils.ByteSliceToString(result.Fields[i].Name)] = i
		i++
	}
}

func (c *Conn) readResultRows(result *mysql.Result, isBinary bool) error {
	for {
		before := len(result.RawPkg)
		raw, err := c.ReadPacketReuseMem(result.RawPkg)
		if err != nil {
			return err
		}
		result.RawPkg = raw
		data := result.RawPkg[before:]

		if c.isEOFPacket(data) {
			if c.capability&mysql.CLIENT_PROTOCOL_41 > 0 {
				result.Warnings = binary.LittleEndian.Uint16(data[1:])
				result.Status = binary.LittleEndian.Uint16(data[3:])
				c.status = result.Status
			}
			break
		}
		if data[0] == mysql.ERR_HEADER {
			return c.handleErrorPacket(data)
		}

		result.RowDatas = append(result.RowDatas, data)
	}

	if cap(result.Values) < len(result.RowDatas) {
		result.Values = make([][]mysql.FieldValue, len(result.RowDatas))
	} else {
		result.Values = result.Values[:len(result.RowDatas)]
	}

	for i := range result.Values {
		values, err := result.RowDatas[i].Parse(result.Fields, isBinary, result.Values[i])
		if err != nil {
			return errors.Trace(err)
		}
		result.Values[i] = values
	}

	return nil
}

func (c *Conn) readResultRowsStreaming(result *mysql.Result, isBinary bool, perRowCb SelectPerRowCallback) error {
	var row []mysql.FieldValue
	var data []byte

	for {
		var err error
		data, err = c.ReadPacketReuseMem(data[:0])
		if err != nil {
			return err
		}

		if c.isEOFPacket(data) {
			if c.capability&mysql.CLIENT_PROTOCOL_41 > 0 {
				result.Warnings = binary.LittleEndian.Uint16(data[1:])
				result.Status = binary.LittleEndian.Uint16(data[3:])
				c.status = result.Status
			}
			return nil
		}
		if data[0] == mysql.ERR_HEADER {
			return c.handleErrorPacket(data)
		}

		row, err = mysql.RowData(data).Parse(result.Fields, isBinary, row)
		if err != nil {
			return errors.Trace(err)
		}
		if err := perRowCb(row); err != nil {
			return err
		}
	}
}
