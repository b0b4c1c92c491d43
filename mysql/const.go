package mysql

// Binlog checksum algorithm codes, see FormatDescriptionEvent.ChecksumAlgorithm.
const (
	BINLOG_CHECKSUM_ALG_OFF   byte = 0
	BINLOG_CHECKSUM_ALG_CRC32 byte = 1
	BINLOG_CHECKSUM_ALG_UNDEF byte = 255
)

// Packet header bytes.
const (
	OK_HEADER          byte = 0x00
	MORE_DATE_HEADER   byte = 0x01
	ERR_HEADER         byte = 0xff
	EOF_HEADER         byte = 0xfe
	LocalInFile_HEADER byte = 0xfb
)

// Server capability flags, subset needed for a replica handshake.
const (
	CLIENT_LONG_PASSWORD uint32 = 1 << iota
	CLIENT_FOUND_ROWS
	CLIENT_LONG_FLAG
	CLIENT_CONNECT_WITH_DB
	CLIENT_NO_SCHEMA
	CLIENT_COMPRESS
	CLIENT_ODBC
	CLIENT_LOCAL_FILES
	CLIENT_IGNORE_SPACE
	CLIENT_PROTOCOL_41
	CLIENT_INTERACTIVE
	CLIENT_SSL
	CLIENT_IGNORE_SIGPIPE
	CLIENT_TRANSACTIONS
	CLIENT_RESERVED
	CLIENT_SECURE_CONNECTION
	CLIENT_MULTI_STATEMENTS
	CLIENT_MULTI_RESULTS
	CLIENT_PS_MULTI_RESULTS
	CLIENT_PLUGIN_AUTH
	CLIENT_CONNECT_ATTRS
	CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA
	CLIENT_CAN_HANDLE_EXPIRED_PASSWORDS
	CLIENT_SESSION_TRACK
	CLIENT_DEPRECATE_EOF
)

// ZSTD_COMPRESSION_ALGORITHM is negotiated separately from the legacy CLIENT_COMPRESS bit,
// via the compress=zstd connection attribute; kept as a named bit for documentation.
const ZSTD_COMPRESSION_ALGORITHM uint32 = 1 << 26

// Server status flags, read from OK packets.
const (
	SERVER_STATUS_IN_TRANS uint16 = 1 << iota
	SERVER_STATUS_AUTOCOMMIT
	_
	SERVER_MORE_RESULTS_EXISTS
	SERVER_STATUS_NO_GOOD_INDEX_USED
	SERVER_STATUS_NO_INDEX_USED
	SERVER_STATUS_CURSOR_EXISTS
	SERVER_STATUS_LAST_ROW_SEND
	SERVER_STATUS_DB_DROPPED
	SERVER_STATUS_NO_BACKSLASH_ESCAPES
	SERVER_STATUS_METADATA_CHANGED
	SERVER_QUERY_WAS_SLOW
	SERVER_PS_OUT_PARAMS
	SERVER_STATUS_IN_TRANS_READONLY
	SERVER_SESSION_STATE_CHANGED
)

// Auth plugin names.
const (
	AUTH_MYSQL_OLD_PASSWORD     = "mysql_old_password"
	AUTH_NATIVE_PASSWORD        = "mysql_native_password"
	AUTH_CACHING_SHA2_PASSWORD  = "caching_sha2_password"
	AUTH_SHA256_PASSWORD        = "sha256_password"
	CACHE_SHA2_FAST_AUTH   byte = 3
	CACHE_SHA2_FULL_AUTH   byte = 4
)

// Column types, as carried by TableMapEvent.columnType[] (subset relevant to replication).
const (
	MYSQL_TYPE_DECIMAL     byte = 0
	MYSQL_TYPE_TINY        byte = 1
	MYSQL_TYPE_SHORT       byte = 2
	MYSQL_TYPE_LONG        byte = 3
	MYSQL_TYPE_FLOAT       byte = 4
	MYSQL_TYPE_DOUBLE      byte = 5
	MYSQL_TYPE_NULL        byte = 6
	MYSQL_TYPE_TIMESTAMP   byte = 7
	MYSQL_TYPE_LONGLONG    byte = 8
	MYSQL_TYPE_INT24       byte = 9
	MYSQL_TYPE_DATE        byte = 10
	MYSQL_TYPE_TIME        byte = 11
	MYSQL_TYPE_DATETIME    byte = 12
	MYSQL_TYPE_YEAR        byte = 13
	MYSQL_TYPE_NEWDATE     byte = 14
	MYSQL_TYPE_VARCHAR     byte = 15
	MYSQL_TYPE_BIT         byte = 16
	MYSQL_TYPE_TIMESTAMP2  byte = 17
	MYSQL_TYPE_DATETIME2   byte = 18
	MYSQL_TYPE_TIME2       byte = 19
	MYSQL_TYPE_JSON        byte = 245
	MYSQL_TYPE_NEWDECIMAL  byte = 246
	MYSQL_TYPE_ENUM        byte = 247
	MYSQL_TYPE_SET         byte = 248
	MYSQL_TYPE_TINY_BLOB   byte = 249
	MYSQL_TYPE_MEDIUM_BLOB byte = 250
	MYSQL_TYPE_LONG_BLOB   byte = 251
	MYSQL_TYPE_BLOB        byte = 252
	MYSQL_TYPE_VAR_STRING  byte = 253
	MYSQL_TYPE_STRING      byte = 254
	MYSQL_TYPE_GEOMETRY    byte = 255
)

// TimeFormat mirrors MySQL's canonical DATETIME textual rendering.
const TimeFormat = "2006-01-02 15:04:05"

// UNSIGNED_FLAG is the Field.Flag bit marking an unsigned numeric column.
const UNSIGNED_FLAG uint16 = 0x20
