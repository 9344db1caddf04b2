package codec

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/MarkStokes71/stm8gal/pkg/image"
)

// srecAddrBytes maps an S-record type to its address field width in bytes.
var srecAddrBytes = map[byte]int{
	'0': 2,
	'1': 2,
	'2': 3,
	'3': 4,
	'5': 2,
	'7': 4,
	'8': 3,
	'9': 2,
}

// srecDataTypes are the record types that carry data bytes into the image.
var srecDataTypes = map[byte]bool{'1': true, '2': true, '3': true}

// DecodeSRecord parses Motorola S-record text and merges the decoded
// bytes into img. Accepts S1/S2/S3 data records; tolerates but ignores
// S0/S5/S7/S8/S9. Any structural or checksum deviation aborts with the
// offending line number.
func DecodeSRecord(img *image.Image, data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := decodeSRecordLine(img, line, lineNo); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func decodeSRecordLine(img *image.Image, line string, lineNo int) error {
	if len(line) < 4 || line[0] != 'S' {
		return lineErr("SRecordInvalidStart", lineNo, "line does not start with 'S<type>'")
	}
	typ := line[1]
	addrBytes, ok := srecAddrBytes[typ]
	if !ok {
		return lineErr("SRecordInvalidStart", lineNo, "unknown record type S%c", typ)
	}
	hexPart := line[2:]
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return lineErr("SRecordInvalidStart", lineNo, "non-hex payload: %v", err)
	}
	if len(raw) < 1 {
		return lineErr("SRecordInvalidStart", lineNo, "missing length byte")
	}
	length := int(raw[0])
	if length != len(raw)-1 {
		return lineErr("SRecordInvalidStart", lineNo, "length byte %d does not match %d remaining bytes", length, len(raw)-1)
	}
	if length < addrBytes+1 {
		return lineErr("SRecordAddressOverflow", lineNo, "length %d too short for %d address bytes", length, addrBytes)
	}
	body := raw[1:] // addr + data + checksum
	checksum := body[len(body)-1]
	payload := body[:len(body)-1]

	sum := byte(length)
	for _, b := range body[:len(body)-1] {
		sum += b
	}
	if byte(^sum) != checksum {
		return lineErr("SRecordChecksum", lineNo, "checksum mismatch: got %02X want %02X", checksum, byte(^sum))
	}

	if !srecDataTypes[typ] {
		return nil
	}

	addr := 0
	for i := 0; i < addrBytes; i++ {
		addr = addr<<8 | int(payload[i])
	}
	if addr+len(payload)-addrBytes > image.LenImage {
		return lineErr("SRecordAddressOverflow", lineNo, "address 0x%X exceeds image capacity", addr)
	}
	dataBytes := payload[addrBytes:]
	for i, b := range dataBytes {
		img.Set(addr+i, b)
	}
	return nil
}

// EncodeSRecord emits the defined bytes of img as Motorola S-record text:
// a dummy S0 header, data records grouped into blocks of up to 32 bytes
// aligned on 32-byte boundaries where possible, and a termination record
// matching the narrowest record type that covers the highest address.
func EncodeSRecord(img *image.Image) ([]byte, error) {
	first, last, count, err := image.Extent(img, 0, image.LenImage-1)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("S0030000FC\n")
	if count == 0 {
		buf.WriteString("S9030000FC\n")
		return buf.Bytes(), nil
	}

	var dataType byte
	var addrBytes int
	switch {
	case last <= 0xFFFF:
		dataType, addrBytes = '1', 2
	case last <= 0xFFFFFF:
		dataType, addrBytes = '2', 3
	default:
		dataType, addrBytes = '3', 4
	}

	for _, c := range image.ChunkDefined(img, first, last, maxBlockBytes, maxBlockBytes) {
		writeSRecordLine(&buf, dataType, addrBytes, c.Addr, c.Data)
	}

	var termType byte
	switch dataType {
	case '1':
		termType = '9'
	case '2':
		termType = '8'
	default:
		termType = '7'
	}
	writeSRecordLine(&buf, termType, addrBytes, 0, nil)
	return buf.Bytes(), nil
}

func writeSRecordLine(buf *bytes.Buffer, typ byte, addrBytes, addr int, data []byte) {
	length := addrBytes + len(data) + 1
	sum := byte(length)
	addrField := make([]byte, addrBytes)
	for i := addrBytes - 1; i >= 0; i-- {
		addrField[i] = byte(addr)
		addr >>= 8
	}
	for _, b := range addrField {
		sum += b
	}
	for _, b := range data {
		sum += b
	}
	checksum := byte(^sum)

	fmt.Fprintf(buf, "S%c%02X", typ, length)
	buf.WriteString(strings.ToUpper(hex.EncodeToString(addrField)))
	buf.WriteString(strings.ToUpper(hex.EncodeToString(data)))
	fmt.Fprintf(buf, "%02X\n", checksum)
}
