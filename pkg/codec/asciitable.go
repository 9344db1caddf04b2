package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarkStokes71/stm8gal/pkg/image"
)

// DecodeASCIITable parses the "# addr\tvalue" table format: lines
// starting with '#' are comments, other lines are a tab-separated
// address/value pair, each token either decimal or hex (0x/0X prefix).
func DecodeASCIITable(img *image.Image, data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return lineErr("InvalidCharacter", lineNo, "expected 'address value', got %q", line)
		}
		addr, err := parseToken(fields[0])
		if err != nil {
			return lineErr("InvalidCharacter", lineNo, "bad address token %q: %v", fields[0], err)
		}
		value, err := parseToken(fields[1])
		if err != nil {
			return lineErr("InvalidCharacter", lineNo, "bad value token %q: %v", fields[1], err)
		}
		if addr < 0 || addr >= image.LenImage {
			return lineErr("InvalidCharacter", lineNo, "address 0x%X exceeds image capacity", addr)
		}
		if value < 0 || value > 0xFF {
			return lineErr("InvalidCharacter", lineNo, "value 0x%X out of byte range", value)
		}
		img.Set(addr, byte(value))
	}
	return scanner.Err()
}

// parseToken accepts a decimal literal or a 0x/0X-prefixed hex literal,
// validating the character set strictly before parsing.
func parseToken(tok string) (int, error) {
	if tok == "" {
		return 0, fmt.Errorf("empty token")
	}
	if len(tok) > 2 && (tok[0:2] == "0x" || tok[0:2] == "0X") {
		hexPart := tok[2:]
		for _, r := range hexPart {
			if !isHexDigit(r) {
				return 0, fmt.Errorf("non-hex character %q", r)
			}
		}
		v, err := strconv.ParseInt(hexPart, 16, 64)
		if err != nil {
			return 0, err
		}
		return int(v), nil
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-decimal character %q", r)
		}
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// EncodeASCIITable emits a header "# address\tvalue" followed by one line
// per defined byte in [first, last], ascending, hex-formatted.
func EncodeASCIITable(img *image.Image) ([]byte, error) {
	first, last, count, err := image.Extent(img, 0, image.LenImage-1)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("# address\tvalue\n")
	if count == 0 {
		return buf.Bytes(), nil
	}
	for a := first; a <= last; a++ {
		v, ok := img.Get(a)
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "0x%04X\t0x%02X\n", a, v)
	}
	return buf.Bytes(), nil
}
