package replication

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/client"
	"github.com/relaycore/mysql-binlog/mysql"
)

// Binlog dump command codes, the raw COM_* bytes a replica session sends once it's past
// the ordinary query protocol.
const (
	comRegisterSlave  byte = 21
	comBinlogDump     byte = 18
	comBinlogDumpGTID byte = 30
)

const semiSyncIndicator byte = 0xef

// BinlogSyncer drives one replica session end to end: it dials, authenticates,
// registers as a replica, issues the dump command, and pumps decoded events into a
// BinlogStreamer until Close is called or the reconnect budget is exhausted.
type BinlogSyncer struct {
	cfg SyncerConfig

	parser *BinlogParser
	logger *slog.Logger

	mu       sync.Mutex
	conn     *client.Conn
	streamer *BinlogStreamer
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	lastConnectionID uint32
}

// NewBinlogSyncer constructs a syncer from cfg; it does not connect until StartSync or
// StartSyncGTID is called.
func NewBinlogSyncer(cfg SyncerConfig) *BinlogSyncer {
	if cfg.Flavor == "" {
		cfg.Flavor = MySQLFlavor
	}
	if cfg.Charset == "" {
		cfg.Charset = "utf8mb4"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parser := NewBinlogParser()
	parser.SetFlavor(cfg.Flavor)
	parser.SetRawMode(cfg.RawMode)
	parser.SetVerifyChecksum(cfg.VerifyChecksum)
	parser.SetUseDecimal(cfg.UseDecimal)
	parser.SetUseFloatWithTrailingZero(cfg.UseFloatWithTrailingZero)
	parser.SetIgnoreJSONDecodeErr(cfg.IgnoreJSONDecodeErr)
	parser.SetParseTime(cfg.ParseTime)

	return &BinlogSyncer{
		cfg:    cfg,
		parser: parser,
		logger: logger,
	}
}

// StartSync begins replicating from pos (a binlog filename/offset pair).
func (b *BinlogSyncer) StartSync(pos mysql.Position) (*BinlogStreamer, error) {
	return b.start(func(c *client.Conn) error {
		return b.writeDumpCommand(c, pos)
	}, pos, nil)
}

// StartSyncGTID begins replicating from the point immediately after every transaction in
// set, using COM_BINLOG_DUMP_GTID (MySQL) or the MariaDB SET @slave_connect_state dance.
func (b *BinlogSyncer) StartSyncGTID(set mysql.GTIDSet) (*BinlogStreamer, error) {
	return b.start(func(c *client.Conn) error {
		return b.writeDumpGTIDCommand(c, set)
	}, mysql.Position{}, set)
}

func (b *BinlogSyncer) start(dump func(*client.Conn) error, pos mysql.Position, gset mysql.GTIDSet) (*BinlogStreamer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	b.cancel = cancel
	b.streamer = newBinlogStreamer()
	streamer := b.streamer
	b.mu.Unlock()

	conn, err := b.replicaConnect()
	if err != nil {
		cancel()
		return nil, errors.Trace(err)
	}

	if err := dump(conn); err != nil {
		_ = conn.Close()
		cancel()
		return nil, errors.Trace(err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	b.wg.Add(1)
	go b.pump(ctx, streamer, pos, gset)

	return streamer, nil
}

// Close tears down the active connection and stops the pump goroutine, returning the
// streamer to CLOSED.
func (b *BinlogSyncer) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	conn := b.conn
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	b.wg.Wait()
	return nil
}

// replicaConnect opens a fresh connection and drives the handshake sequence of spec
// §4.10 steps 1-9, returning a connection with COM_REGISTER_SLAVE already acknowledged.
func (b *BinlogSyncer) replicaConnect() (*client.Conn, error) {
	var options []client.Option
	if b.cfg.DialTimeout > 0 {
		options = append(options, client.WithDialTimeout(b.cfg.DialTimeout))
	}
	if b.cfg.TLSConfig != nil {
		options = append(options, client.WithTLSConfig(b.cfg.TLSConfig))
	}

	c, err := client.Connect(b.cfg.Addr, b.cfg.User, b.cfg.Password, "", b.cfg.Charset, options...)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if b.cfg.ReadTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
	}

	if b.lastConnectionID != 0 {
		killConn, killErr := client.Connect(b.cfg.Addr, b.cfg.User, b.cfg.Password, "", b.cfg.Charset, options...)
		if killErr == nil {
			_, _ = killConn.Execute(fmt.Sprintf("KILL %d", b.lastConnectionID))
			_ = killConn.Close()
		}
	}

	if _, err := c.Execute("SHOW GLOBAL VARIABLES LIKE 'BINLOG_CHECKSUM'"); err == nil {
		if _, err := c.Execute("SET @master_binlog_checksum='NONE'"); err != nil {
			_ = c.Close()
			return nil, errors.Trace(err)
		}
	}

	if b.cfg.Flavor == MariaDBFlavor {
		if _, err := c.Execute("SET @mariadb_slave_capability=4"); err != nil {
			_ = c.Close()
			return nil, errors.Trace(err)
		}
	}
	if b.cfg.HeartbeatPeriod > 0 {
		ns := b.cfg.HeartbeatPeriod.Nanoseconds()
		if _, err := c.Execute(fmt.Sprintf("SET @master_heartbeat_period=%d", ns)); err != nil {
			b.logger.Warn("failed to set heartbeat period", slog.Any("error", err))
		}
	}

	if err := b.registerSlave(c); err != nil {
		_ = c.Close()
		return nil, errors.Trace(err)
	}

	replicaUUID := uuid.New().String()
	if _, err := c.Execute(fmt.Sprintf("SET @slave_uuid='%s', @replica_uuid='%s'", replicaUUID, replicaUUID)); err != nil {
		b.logger.Warn("failed to set replica uuid", slog.Any("error", err))
	}

	if b.cfg.SemiSyncEnabled {
		if res, err := c.Execute("SHOW VARIABLES LIKE 'rpl_semi_sync_master_enabled'"); err == nil && len(res.Values) > 0 {
			if _, err := c.Execute("SET @rpl_semi_sync_slave=1"); err != nil {
				b.logger.Warn("failed to enable semi-sync", slog.Any("error", err))
			}
		}
	}

	b.lastConnectionID = c.ConnectionID()

	return c, nil
}

// registerSlave sends COM_REGISTER_SLAVE: server-id, hostname, user, password, port,
// rank=0, master-id=0.
func (b *BinlogSyncer) registerSlave(c *client.Conn) error {
	hostname := b.cfg.Hostname

	data := make([]byte, 0, 64)
	data = append(data, comRegisterSlave)
	data = appendUint32(data, b.cfg.ServerID)
	data = append(data, byte(len(hostname)))
	data = append(data, hostname...)
	data = append(data, byte(len(b.cfg.User)))
	data = append(data, b.cfg.User...)
	data = append(data, byte(len(b.cfg.Password)))
	data = append(data, b.cfg.Password...)
	data = appendUint16(data, 0) // port, reported informationally only
	data = appendUint32(data, 0) // replication rank, unused by modern servers
	data = appendUint32(data, 0) // master id, always 0 from the replica's own perspective

	c.ResetSequence()
	if err := c.WritePacket(data); err != nil {
		return errors.Trace(err)
	}

	resp, err := c.ReadPacket()
	if err != nil {
		return errors.Trace(err)
	}
	if len(resp) > 0 && resp[0] == mysql.ERR_HEADER {
		return errors.Errorf("COM_REGISTER_SLAVE failed: %x", resp)
	}
	return nil
}

// writeDumpCommand issues a positional COM_BINLOG_DUMP.
func (b *BinlogSyncer) writeDumpCommand(c *client.Conn, pos mysql.Position) error {
	data := make([]byte, 0, 32+len(pos.Name))
	data = append(data, comBinlogDump)
	data = appendUint32(data, pos.Pos)
	data = appendUint16(data, 0) // flags: blocking dump
	data = appendUint32(data, b.cfg.ServerID)
	data = append(data, pos.Name...)

	c.ResetSequence()
	return errors.Trace(c.WritePacket(data))
}

// writeDumpGTIDCommand issues COM_BINLOG_DUMP_GTID for MySQL, or the MariaDB
// SET @slave_connect_state dance followed by a positional dump with an empty filename.
func (b *BinlogSyncer) writeDumpGTIDCommand(c *client.Conn, set mysql.GTIDSet) error {
	if b.cfg.Flavor == MariaDBFlavor {
		if _, err := c.Execute(fmt.Sprintf("SET @slave_connect_state='%s'", set.String())); err != nil {
			return errors.Trace(err)
		}
		if _, err := c.Execute("SET @slave_gtid_strict_mode=1"); err != nil {
			return errors.Trace(err)
		}
		return b.writeDumpCommand(c, mysql.Position{})
	}

	gtidData := set.Encode()

	data := make([]byte, 0, 32+len(gtidData))
	data = append(data, comBinlogDumpGTID)
	data = appendUint16(data, 0) // flags: blocking dump
	data = appendUint32(data, b.cfg.ServerID)
	data = appendUint32(data, 0) // binlog filename length: 0, server resolves from GTID set
	data = appendUint64(data, 4) // binlog position: 4, the start of the first real event
	data = appendUint32(data, uint32(len(gtidData)))
	data = append(data, gtidData...)

	c.ResetSequence()
	return errors.Trace(c.WritePacket(data))
}

// pump is the event loop of spec §4.10: read a packet, strip the semi-sync envelope if
// present, parse the event, apply its position/GTID side effects, and deliver it.
func (b *BinlogSyncer) pump(ctx context.Context, streamer *BinlogStreamer, startPos mysql.Position, startGset mysql.GTIDSet) {
	defer b.wg.Done()

	nextPos := startPos
	var currGset, prevGset mysql.GTIDSet
	if startGset != nil {
		prevGset = cloneGTIDSet(startGset)
	}

	reconnectAttempts := 0

	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			streamer.closeWithError(nil)
			return
		}

		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
			streamer.closeWithError(nil)
			return
		default:
		}

		data, err := conn.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				streamer.closeWithError(nil)
				return
			}
			if b.cfg.DisableRetrySync {
				streamer.closeWithError(errors.Trace(err))
				return
			}
			if b.cfg.MaxReconnectAttempts > 0 && reconnectAttempts >= b.cfg.MaxReconnectAttempts {
				streamer.closeWithError(errors.Trace(err))
				return
			}

			reconnectAttempts++
			b.logger.Warn("binlog stream read failed, reconnecting",
				slog.Any("error", err), slog.Int("attempt", reconnectAttempts))

			time.Sleep(time.Second)

			newConn, connErr := b.replicaConnect()
			if connErr != nil {
				b.logger.Warn("reconnect failed", slog.Any("error", connErr))
				continue
			}

			var resumeErr error
			if prevGset != nil {
				resumeErr = b.writeDumpGTIDCommand(newConn, prevGset)
			} else {
				resumeErr = b.writeDumpCommand(newConn, nextPos)
			}
			if resumeErr != nil {
				_ = newConn.Close()
				b.logger.Warn("resume dump failed", slog.Any("error", resumeErr))
				continue
			}

			b.mu.Lock()
			b.conn = newConn
			b.mu.Unlock()
			continue
		}

		reconnectAttempts = 0

		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case mysql.ERR_HEADER:
			streamer.closeWithError(errors.Errorf("binlog dump error packet: %x", data))
			return
		case mysql.EOF_HEADER:
			continue
		}

		ackRequested := false
		if b.cfg.SemiSyncEnabled && len(data) > 2 && data[1] == semiSyncIndicator {
			ackRequested = data[2] == 0x01
			data = data[3:]
		} else if data[0] == mysql.OK_HEADER {
			data = data[1:]
		}

		be, _, err := b.parser.parseEvent(data)
		if err != nil {
			streamer.closeWithError(errors.Trace(err))
			return
		}

		if be.Header.LogPos != 0 {
			nextPos.Pos = be.Header.LogPos
		}

		switch ev := be.Event.(type) {
		case *RotateEvent:
			nextPos = mysql.Position{Name: string(ev.NextLogName), Pos: uint32(ev.Position)}

		case *GTIDEvent:
			if currGset == nil {
				currGset = b.seedGTIDSet(prevGset)
			}
			if next, err := ev.GTIDNext(); err == nil {
				_ = currGset.Update(next.String())
				prevGset = cloneGTIDSet(currGset)
			}

		case *MariadbGTIDEvent:
			if currGset == nil {
				currGset = b.seedGTIDSet(prevGset)
			}
			_ = currGset.Update(ev.GTID.String())
			prevGset = cloneGTIDSet(currGset)

		case *XIDEvent:
			if !b.cfg.DiscardGTIDSet && currGset != nil {
				ev.GSet = cloneGTIDSet(currGset)
			}

		case *QueryEvent:
			if !b.cfg.DiscardGTIDSet && currGset != nil {
				ev.GSet = cloneGTIDSet(currGset)
			}
		}

		if !streamer.feed(be) {
			return
		}

		if ackRequested {
			ack := make([]byte, 0, 9+len(nextPos.Name))
			ack = append(ack, semiSyncIndicator)
			ack = appendUint64(ack, uint64(nextPos.Pos))
			ack = append(ack, nextPos.Name...)
			if err := conn.WritePacket(ack); err != nil {
				b.logger.Warn("failed to send semi-sync ack", slog.Any("error", err))
			}
		}
	}
}

// seedGTIDSet returns a clone of prev, or a freshly empty set of this syncer's flavor if
// prev is nil: the first GTID event of a positional session has no prior set to clone.
func (b *BinlogSyncer) seedGTIDSet(prev mysql.GTIDSet) mysql.GTIDSet {
	if prev != nil {
		return cloneGTIDSet(prev)
	}
	if b.cfg.Flavor == MariaDBFlavor {
		s, _ := mysql.ParseMariadbGTIDSet("")
		return s
	}
	s, _ := mysql.ParseMysqlGTIDSet("")
	return s
}

// cloneGTIDSet deep-copies set via its concrete flavor; the GTIDSet interface doesn't
// expose Clone since the two flavors' underlying Clone methods return different
// concrete types.
func cloneGTIDSet(set mysql.GTIDSet) mysql.GTIDSet {
	if set == nil {
		return nil
	}
	switch s := set.(type) {
	case *mysql.MysqlGTIDSet:
		return s.Clone()
	case *mysql.MariadbGTIDSet:
		return s.Clone()
	default:
		return set
	}
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
