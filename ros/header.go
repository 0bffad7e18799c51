package ros

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// header is one key=value field of a TCPROS connection header.
type header struct {
	key   string
	value string
}

// maxHeaderSize bounds a connection header read from the wire.
const maxHeaderSize = 1 << 20

func headerMap(headers []header) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.key] = h.value
	}
	return m
}

func readConnectionHeader(r io.Reader) ([]header, error) {
	var headerSize uint32
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, errors.Wrap(err, "read header size")
	}
	if headerSize > maxHeaderSize {
		return nil, errors.Errorf("header size %d exceeds limit", headerSize)
	}
	buf := make([]byte, int(headerSize))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	var headers []header
	reader := bytes.NewReader(buf)
	for reader.Len() > 0 {
		var size uint32
		if err := binary.Read(reader, binary.LittleEndian, &size); err != nil {
			return nil, errors.Wrap(err, "read field size")
		}
		if int(size) > reader.Len() {
			return nil, errors.New("header length overrun")
		}
		line := make([]byte, int(size))
		_, _ = reader.Read(line)
		sep := bytes.IndexByte(line, '=')
		if sep < 0 {
			return nil, errors.Errorf("header field %q has no '='", line)
		}
		headers = append(headers, header{string(line[:sep]), string(line[sep+1:])})
	}
	return headers, nil
}

func writeConnectionHeader(headers []header, w io.Writer) error {
	var buf bytes.Buffer
	for _, h := range headers {
		size := uint32(len(h.key) + len(h.value) + 1)
		_ = binary.Write(&buf, binary.LittleEndian, size)
		buf.WriteString(h.key)
		buf.WriteByte('=')
		buf.WriteString(h.value)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(buf.Len())); err != nil {
		return errors.Wrap(err, "write header size")
	}
	_, err := buf.WriteTo(w)
	return errors.Wrap(err, "write header")
}
