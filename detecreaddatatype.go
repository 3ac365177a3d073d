package wext

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType inspects the leading bytes of a stream and reports which
// compression, if any, it carries. Byte code signatures from
// https://stackoverflow.com/a/19127748/199475
func DetectDataType(head []byte) DataType {
Outer:
	for dt, sig := range byteCodeSigs {
		if len(head) < len(sig) {
			continue
		}
		for position := range sig {
			if head[position] != sig[position] {
				continue Outer
			}
		}
		return dt
	}

	return DataTypeNoCompression
}

// MaybeDecompressReader wraps r in the appropriate decompressor. Unlike a
// file, a generic reader can't be rewound, so the signature is peeked from a
// buffered view of r and the buffered view is what gets decompressed.
func MaybeDecompressReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)

	// Short inputs are fine; Peek returns what it has along with io.EOF.
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, err
	}

	switch DetectDataType(head) {
	case DataTypeGzip:
		return gzip.NewReader(br)
	case DataTypeZip:
		return &readCloserFaker{zipstream.NewReader(br)}, nil
	case DataTypeBZip2:
		return &readCloserFaker{bzip2.NewReader(br)}, nil
	case DataTypeXZ:
		reader, err := xz.NewReader(br, 0)
		if err != nil {
			return nil, err
		}
		return &readCloserFaker{reader}, nil
	case DataTypeZ:
		return zlib.NewReader(br)
	}

	return &readCloserFaker{br}, nil
}

// readCloserFaker "upgrades" readers that don't need to be closed
type readCloserFaker struct {
	io.Reader
}

func (c *readCloserFaker) Close() error {
	return nil
}
