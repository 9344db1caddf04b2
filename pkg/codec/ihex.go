package codec

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/MarkStokes71/stm8gal/pkg/image"
)

const (
	ihexTypeData               = 0x00
	ihexTypeEOF                = 0x01
	ihexTypeExtendedSegment    = 0x02
	ihexTypeStartSegment       = 0x03
	ihexTypeExtendedLinearAddr = 0x04
	ihexTypeStartLinearAddr    = 0x05
)

// DecodeIntelHex parses Intel HEX text and merges the decoded bytes into
// img. Type 04 (extended linear address) shifts the 16-bit record address
// of subsequent records by 16 bits. Type 02 (extended segment address) is
// an explicit, unsupported error per spec (no semantic is guessed for
// it); 03/05 are tolerated and ignored.
func DecodeIntelHex(img *image.Image, data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	upperAddr := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		done, newUpper, err := decodeIntelHexLine(img, line, lineNo, upperAddr)
		if err != nil {
			return err
		}
		upperAddr = newUpper
		if done {
			break
		}
	}
	return scanner.Err()
}

func decodeIntelHexLine(img *image.Image, line string, lineNo, upperAddr int) (done bool, newUpper int, err error) {
	newUpper = upperAddr
	if len(line) < 1 || line[0] != ':' {
		return false, newUpper, lineErr("HexInvalidStart", lineNo, "line does not start with ':'")
	}
	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return false, newUpper, lineErr("HexInvalidStart", lineNo, "non-hex payload: %v", err)
	}
	if len(raw) < 5 {
		return false, newUpper, lineErr("HexInvalidStart", lineNo, "record too short")
	}
	length := int(raw[0])
	addr := int(raw[1])<<8 | int(raw[2])
	typ := raw[3]
	if len(raw) != 5+length {
		return false, newUpper, lineErr("HexInvalidStart", lineNo, "length byte %d does not match record size", length)
	}
	payload := raw[4 : 4+length]
	checksum := raw[4+length]

	sum := byte(0)
	for _, b := range raw[:4+length] {
		sum += b
	}
	want := byte(-sum)
	if checksum != want {
		return false, newUpper, lineErr("HexChecksum", lineNo, "checksum mismatch: got %02X want %02X", checksum, want)
	}

	switch typ {
	case ihexTypeData:
		full := upperAddr<<16 | addr
		if full+length > image.LenImage {
			return false, newUpper, lineErr("HexAddressOverflow", lineNo, "address 0x%X exceeds image capacity", full)
		}
		for i, b := range payload {
			img.Set(full+i, b)
		}
	case ihexTypeEOF:
		return true, newUpper, nil
	case ihexTypeExtendedSegment:
		return false, newUpper, lineErr("HexUnsupportedType", lineNo, "extended segment address (type 02) is not supported")
	case ihexTypeStartSegment:
		// tolerated, no data
	case ihexTypeExtendedLinearAddr:
		if length != 2 {
			return false, newUpper, lineErr("HexInvalidStart", lineNo, "extended linear address record must carry 2 data bytes")
		}
		newUpper = int(payload[0])<<8 | int(payload[1])
	case ihexTypeStartLinearAddr:
		// tolerated, no data
	default:
		return false, newUpper, lineErr("HexUnsupportedType", lineNo, "unsupported record type %02X", typ)
	}
	return false, newUpper, nil
}

// EncodeIntelHex emits the defined bytes of img as Intel HEX text: a type
// 04 extended-linear-address record whenever the upper 16 bits of the
// next block's address change, type-00 data blocks of up to 32 bytes,
// terminated by ":00000001FF".
func EncodeIntelHex(img *image.Image) ([]byte, error) {
	first, last, count, err := image.Extent(img, 0, image.LenImage-1)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if count == 0 {
		buf.WriteString(":00000001FF\n")
		return buf.Bytes(), nil
	}
	upperAddr := -1
	for _, c := range image.ChunkDefined(img, first, last, maxBlockBytes, maxBlockBytes) {
		upper := c.Addr >> 16
		if upper != upperAddr {
			writeIntelHexRecord(&buf, ihexTypeExtendedLinearAddr, 0, []byte{byte(upper >> 8), byte(upper)})
			upperAddr = upper
		}
		writeIntelHexRecord(&buf, ihexTypeData, uint16(c.Addr), c.Data)
	}
	buf.WriteString(":00000001FF\n")
	return buf.Bytes(), nil
}

func writeIntelHexRecord(buf *bytes.Buffer, typ byte, addr uint16, data []byte) {
	length := byte(len(data))
	sum := length + byte(addr>>8) + byte(addr) + typ
	for _, b := range data {
		sum += b
	}
	checksum := byte(-sum)

	fmt.Fprintf(buf, ":%02X%04X%02X", length, addr, typ)
	buf.WriteString(strings.ToUpper(hex.EncodeToString(data)))
	fmt.Fprintf(buf, "%02X\n", checksum)
}
