package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resp builds a complete binary protocol response frame: a 24-byte header
// followed by extras||key||value, with bodyLen computed from their lengths.
func resp(opcode Opcode, status Status, key string, extras, value []byte) []byte {
	body := make([]byte, 0, len(extras)+len(key)+len(value))
	body = append(body, extras...)
	body = append(body, []byte(key)...)
	body = append(body, value...)

	hdr := make([]byte, HeaderLen)
	hdr[0] = MagicResponse
	hdr[1] = byte(opcode)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(key)))
	hdr[4] = byte(len(extras))
	binary.BigEndian.PutUint16(hdr[6:8], uint16(status))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	return append(hdr, body...)
}

// rawHeader builds a bare 24-byte header with no body, for exercising
// framing checks that must fail before any body is read.
func rawHeader(magic byte, opcode Opcode, keyLen uint16, extras byte, status Status, bodyLen uint32) []byte {
	hdr := make([]byte, HeaderLen)
	hdr[0] = magic
	hdr[1] = byte(opcode)
	binary.BigEndian.PutUint16(hdr[2:4], keyLen)
	hdr[4] = extras
	binary.BigEndian.PutUint16(hdr[6:8], uint16(status))
	binary.BigEndian.PutUint32(hdr[8:12], bodyLen)
	return hdr
}

func newBinRW(responses ...[]byte) (*bufio.ReadWriter, *bytes.Buffer) {
	var in bytes.Buffer
	for _, r := range responses {
		in.Write(r)
	}
	var out bytes.Buffer
	return bufio.NewReadWriter(bufio.NewReader(&in), bufio.NewWriter(&out)), &out
}

type decodedRequest struct {
	opcode Opcode
	key    string
	extras []byte
	value  []byte
}

// decodeRequests parses every request frame the driver wrote, in order, so
// a test can assert on opcode/key/extras/value without hand-decoding bytes.
func decodeRequests(t *testing.T, raw []byte) []decodedRequest {
	t.Helper()
	var out []decodedRequest
	for len(raw) > 0 {
		require.GreaterOrEqual(t, len(raw), HeaderLen)
		require.Equal(t, MagicRequest, raw[0])
		opcode := Opcode(raw[1])
		keyLen := int(binary.BigEndian.Uint16(raw[2:4]))
		extrasLen := int(raw[4])
		bodyLen := int(binary.BigEndian.Uint32(raw[8:12]))
		body := raw[HeaderLen : HeaderLen+bodyLen]
		out = append(out, decodedRequest{
			opcode: opcode,
			extras: body[:extrasLen],
			key:    string(body[extrasLen : extrasLen+keyLen]),
			value:  body[extrasLen+keyLen:],
		})
		raw = raw[HeaderLen+bodyLen:]
	}
	return out
}

func decodeRequest(t *testing.T, raw []byte) decodedRequest {
	t.Helper()
	reqs := decodeRequests(t, raw)
	require.Len(t, reqs, 1)
	return reqs[0]
}

func TestBinary_StoreSet(t *testing.T) {
	handle, out := newBinRW(resp(OpSet, StatusNoError, "", nil, nil))
	stored, err := Binary{}.Store(handle, VerbSet, "foo", Payload{Data: []byte("bar"), Flags: 3}, 60)
	require.NoError(t, err)
	assert.True(t, stored)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Equal(t, OpSet, req.opcode)
	assert.Equal(t, "foo", req.key)
	assert.Equal(t, []byte("bar"), req.value)
	require.Len(t, req.extras, 8)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(req.extras[0:4]))
	assert.Equal(t, uint32(60), binary.BigEndian.Uint32(req.extras[4:8]))
}

func TestBinary_StoreAppendAndPrependCarryNoExtras(t *testing.T) {
	for _, verb := range []string{VerbAppend, VerbPrepend} {
		handle, out := newBinRW(resp(OpAppend, StatusNoError, "", nil, nil))
		_, err := Binary{}.Store(handle, verb, "foo", Payload{Data: []byte("bar")}, 0)
		require.NoError(t, err)
		require.NoError(t, handle.Flush())
		req := decodeRequest(t, out.Bytes())
		assert.Empty(t, req.extras)
	}
}

func TestBinary_StoreNotStoredStatuses(t *testing.T) {
	for _, status := range []Status{StatusKeyNotFound, StatusKeyExists, StatusItemNotStored} {
		handle, _ := newBinRW(resp(OpSet, status, "", nil, nil))
		stored, err := Binary{}.Store(handle, VerbSet, "foo", Payload{Data: []byte("bar")}, 0)
		require.NoError(t, err)
		assert.False(t, stored)
	}
}

func TestBinary_StoreUnknownStatusIsServerRejected(t *testing.T) {
	handle, _ := newBinRW(resp(OpSet, StatusOutOfMemory, "", nil, nil))
	_, err := Binary{}.Store(handle, VerbSet, "foo", Payload{Data: []byte("bar")}, 0)
	assert.ErrorIs(t, err, ErrServerRejected)
}

func TestBinary_StoreInvalidKeyNeverWritesToWire(t *testing.T) {
	handle, out := newBinRW()
	_, err := Binary{}.Store(handle, VerbSet, "bad key", Payload{Data: []byte("x")}, 0)
	assert.Error(t, err)
	require.NoError(t, handle.Flush())
	assert.Empty(t, out.Bytes())
}

func TestBinary_Delete(t *testing.T) {
	handle, out := newBinRW(resp(OpDelete, StatusNoError, "", nil, nil))
	deleted, err := Binary{}.Delete(handle, "foo")
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Equal(t, OpDelete, req.opcode)
	assert.Equal(t, "foo", req.key)
}

func TestBinary_DeleteKeyNotFound(t *testing.T) {
	handle, _ := newBinRW(resp(OpDelete, StatusKeyNotFound, "", nil, nil))
	deleted, err := Binary{}.Delete(handle, "foo")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBinary_DeleteUnknownStatusIsServerRejected(t *testing.T) {
	handle, _ := newBinRW(resp(OpDelete, StatusInvalidArgs, "", nil, nil))
	_, err := Binary{}.Delete(handle, "foo")
	assert.ErrorIs(t, err, ErrServerRejected)
}

func TestBinary_IncrSuccess(t *testing.T) {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, 43)
	handle, out := newBinRW(resp(OpIncr, StatusNoError, "", nil, value))

	got, found, err := Binary{}.Incr(handle, "counter", 1, 0, false, 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(43), got)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Equal(t, OpIncr, req.opcode)
	require.Len(t, req.extras, 20)
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(req.extras[0:8]))
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(req.extras[8:16]))
	assert.Equal(t, NoCreateExptime, binary.BigEndian.Uint32(req.extras[16:20]))
}

func TestBinary_IncrWithInitialUsesProvidedExptime(t *testing.T) {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, 5)
	handle, out := newBinRW(resp(OpIncr, StatusNoError, "", nil, value))

	_, _, err := Binary{}.Incr(handle, "counter", 1, 5, true, 60)
	require.NoError(t, err)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Equal(t, uint64(5), binary.BigEndian.Uint64(req.extras[8:16]))
	assert.Equal(t, uint32(60), binary.BigEndian.Uint32(req.extras[16:20]))
}

func TestBinary_IncrWrongLengthValueIsFramingLost(t *testing.T) {
	handle, _ := newBinRW(resp(OpIncr, StatusNoError, "", nil, []byte("short")))
	_, _, err := Binary{}.Incr(handle, "counter", 1, 0, false, 0)
	assert.ErrorIs(t, err, ErrFramingLost)
}

func TestBinary_IncrKeyNotFoundHasNoFallback(t *testing.T) {
	// Unlike the text driver, the binary driver never falls back to an add
	// on a miss: the extras already carry the initial value and exptime in
	// the single request, so a NOT_FOUND here means the server itself
	// declined to create the item (NoCreateExptime was not in play).
	handle, _ := newBinRW(resp(OpIncr, StatusKeyNotFound, "", nil, nil))
	_, found, err := Binary{}.Incr(handle, "counter", 1, 5, true, 60)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBinary_Decr(t *testing.T) {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, 7)
	handle, out := newBinRW(resp(OpDecr, StatusNoError, "", nil, value))

	got, found, err := Binary{}.Decr(handle, "counter", 3, 0, false, 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(7), got)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Equal(t, OpDecr, req.opcode)
}

func TestBinary_GetSingleHit(t *testing.T) {
	extras := make([]byte, 4)
	binary.BigEndian.PutUint32(extras, 5)
	handle, out := newBinRW(
		resp(OpGetKQ, StatusNoError, "foo", extras, []byte("bar")),
		resp(OpNoop, StatusNoError, "", nil, nil),
	)

	values, err := Binary{}.Get(handle, []string{"foo"})
	require.NoError(t, err)
	require.Contains(t, values, "foo")
	assert.Equal(t, Payload{Data: []byte("bar"), Flags: 5}, values["foo"])

	require.NoError(t, handle.Flush())
	reqs := decodeRequests(t, out.Bytes())
	require.Len(t, reqs, 2)
	assert.Equal(t, OpGetKQ, reqs[0].opcode)
	assert.Equal(t, "foo", reqs[0].key)
	assert.Equal(t, OpNoop, reqs[1].opcode)
}

func TestBinary_GetPartialHit(t *testing.T) {
	extras := make([]byte, 4)
	handle, _ := newBinRW(
		resp(OpGetKQ, StatusNoError, "a", extras, []byte("x")),
		resp(OpGetKQ, StatusKeyNotFound, "b", nil, nil),
		resp(OpNoop, StatusNoError, "", nil, nil),
	)

	values, err := Binary{}.Get(handle, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, values, 1)
	assert.Equal(t, []byte("x"), values["a"].Data)
	_, hasB := values["b"]
	assert.False(t, hasB)
}

func TestBinary_GetMiss(t *testing.T) {
	handle, _ := newBinRW(resp(OpNoop, StatusNoError, "", nil, nil))
	values, err := Binary{}.Get(handle, []string{"foo"})
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestBinary_GetUnexpectedOpcodeIsFramingLost(t *testing.T) {
	handle, _ := newBinRW(resp(OpVersion, StatusNoError, "", nil, nil))
	_, err := Binary{}.Get(handle, []string{"foo"})
	assert.ErrorIs(t, err, ErrFramingLost)
}

func TestBinary_GetWrongExtrasLengthIsFramingLost(t *testing.T) {
	handle, _ := newBinRW(resp(OpGetKQ, StatusNoError, "foo", nil, []byte("bar")))
	_, err := Binary{}.Get(handle, []string{"foo"})
	assert.ErrorIs(t, err, ErrFramingLost)
}

func TestBinary_GetInvalidKeyNeverWritesToWire(t *testing.T) {
	handle, out := newBinRW()
	_, err := Binary{}.Get(handle, []string{"bad key"})
	assert.Error(t, err)
	require.NoError(t, handle.Flush())
	assert.Empty(t, out.Bytes())
}

func TestBinary_FlushAllImmediate(t *testing.T) {
	handle, out := newBinRW(resp(OpFlush, StatusNoError, "", nil, nil))
	err := Binary{}.FlushAll(handle, 0)
	require.NoError(t, err)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Empty(t, req.extras)
}

func TestBinary_FlushAllWithDelay(t *testing.T) {
	handle, out := newBinRW(resp(OpFlush, StatusNoError, "", nil, nil))
	err := Binary{}.FlushAll(handle, 30)
	require.NoError(t, err)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	require.Len(t, req.extras, 4)
	assert.Equal(t, uint32(30), binary.BigEndian.Uint32(req.extras))
}

func TestBinary_FlushAllErrorStatus(t *testing.T) {
	handle, _ := newBinRW(resp(OpFlush, StatusInvalidArgs, "", nil, nil))
	err := Binary{}.FlushAll(handle, 0)
	assert.ErrorIs(t, err, ErrServerRejected)
}

func TestBinary_Stats(t *testing.T) {
	handle, out := newBinRW(
		resp(OpStat, StatusNoError, "pid", nil, []byte("123")),
		resp(OpStat, StatusNoError, "uptime", nil, []byte("456")),
		resp(OpStat, StatusNoError, "", nil, nil),
	)

	stats, err := Binary{}.Stats(handle, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"pid": "123", "uptime": "456"}, stats)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Equal(t, OpStat, req.opcode)
}

func TestBinary_StatsPropagatesErrorStatusImmediately(t *testing.T) {
	handle, _ := newBinRW(
		resp(OpStat, StatusNoError, "pid", nil, []byte("123")),
		resp(OpStat, StatusOutOfMemory, "broken", nil, nil),
	)
	_, err := Binary{}.Stats(handle, "")
	assert.ErrorIs(t, err, ErrServerRejected)
}

func TestBinary_Version(t *testing.T) {
	handle, out := newBinRW(resp(OpVersion, StatusNoError, "", nil, []byte("1.6.21")))
	version, err := Binary{}.Version(handle)
	require.NoError(t, err)
	assert.Equal(t, "1.6.21", version)

	require.NoError(t, handle.Flush())
	req := decodeRequest(t, out.Bytes())
	assert.Equal(t, OpVersion, req.opcode)
}

func TestBinary_VersionErrorStatus(t *testing.T) {
	handle, _ := newBinRW(resp(OpVersion, StatusUnknownCommand, "", nil, nil))
	_, err := Binary{}.Version(handle)
	assert.ErrorIs(t, err, ErrServerRejected)
}

func TestBinary_PrepareHandleIsNoop(t *testing.T) {
	assert.NoError(t, Binary{}.PrepareHandle(nil))
}

func TestBinary_BadMagicByteIsFramingLost(t *testing.T) {
	handle, _ := newBinRW(rawHeader(0x00, OpVersion, 0, 0, StatusNoError, 0))
	_, err := Binary{}.Version(handle)
	assert.ErrorIs(t, err, ErrFramingLost)
}

func TestBinary_ExtrasPlusKeyExceedingBodyLenIsFramingLost(t *testing.T) {
	handle, _ := newBinRW(rawHeader(MagicResponse, OpVersion, 10, 4, StatusNoError, 5))
	_, err := Binary{}.Version(handle)
	assert.ErrorIs(t, err, ErrFramingLost)
}
