// Package protocol implements the two wire protocol drivers — text and
// binary — that the memcache client speaks to a server over a persistent
// TCP connection. Both drivers expose the same Driver interface; the
// Connection picks one at construction time and never mixes them on a
// single socket.
package protocol

// Text protocol command verbs used by Store.
const (
	VerbSet     = "set"
	VerbAdd     = "add"
	VerbReplace = "replace"
	VerbAppend  = "append"
	VerbPrepend = "prepend"
)

// Text protocol reply keywords.
const (
	ReplyStored      = "STORED"
	ReplyNotStored   = "NOT_STORED"
	ReplyExists      = "EXISTS"
	ReplyNotFound    = "NOT_FOUND"
	ReplyDeleted     = "DELETED"
	ReplyOK          = "OK"
	ReplyEnd         = "END"
	ReplyValue       = "VALUE"
	ReplyStat        = "STAT"
	ReplyVersion     = "VERSION"
	ReplyError       = "ERROR"
	ReplyClientError = "CLIENT_ERROR"
	ReplyServerError = "SERVER_ERROR"
)

// Binary protocol magic bytes (first header byte).
const (
	MagicRequest  byte = 0x80
	MagicResponse byte = 0x81
)

// HeaderLen is the fixed size of a binary protocol request/response header.
const HeaderLen = 24

// Opcode identifies a binary protocol operation.
type Opcode byte

// Opcodes used by this client. Opcodes exist in the memcached binary
// protocol that this client never emits (e.g. SASL, touch) and are
// intentionally absent here.
const (
	OpGet     Opcode = 0x00
	OpSet     Opcode = 0x01
	OpAdd     Opcode = 0x02
	OpReplace Opcode = 0x03
	OpDelete  Opcode = 0x04
	OpIncr    Opcode = 0x05
	OpDecr    Opcode = 0x06
	OpQuit    Opcode = 0x07
	OpFlush   Opcode = 0x08
	OpNoop    Opcode = 0x0A
	OpVersion Opcode = 0x0B
	OpGetK    Opcode = 0x0C
	OpGetKQ   Opcode = 0x0D
	OpAppend  Opcode = 0x0E
	OpPrepend Opcode = 0x0F
	OpStat    Opcode = 0x10
)

// Status is the 16-bit status word in a binary protocol response header.
type Status uint16

const (
	StatusNoError        Status = 0x0000
	StatusKeyNotFound    Status = 0x0001
	StatusKeyExists      Status = 0x0002
	StatusValueTooLarge  Status = 0x0003
	StatusInvalidArgs    Status = 0x0004
	StatusItemNotStored  Status = 0x0005
	StatusNonNumeric     Status = 0x0006
	StatusUnknownCommand Status = 0x0081
	StatusOutOfMemory    Status = 0x0082
)

// NoCreateExptime is the sentinel exptime for incr/decr extras meaning
// "do not create the item if it is missing".
const NoCreateExptime uint32 = 0xFFFFFFFF

// DefaultPort is appended to a server identifier that omits ":port".
const DefaultPort = "11211"

// MaxKeyLength is the maximum key size, in bytes, accepted on the wire.
const MaxKeyLength = 250
