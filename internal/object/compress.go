package object

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression 原始段输出的压缩方式
type Compression string

const (
	CompressNone Compression = "none"
	CompressLZ4  Compression = "lz4"
	CompressXZ   Compression = "xz"
)

// ParseCompression 解析压缩方式名
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressNone:
		return CompressNone, nil
	case CompressLZ4, CompressXZ:
		return Compression(s), nil
	}
	return "", fmt.Errorf("unknown compression %q (want none, lz4 or xz)", s)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewWriter 返回按 c 压缩写入 w 的 Writer，调用者必须 Close
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressNone, "":
		return nopCloser{w}, nil
	case CompressLZ4:
		return lz4.NewWriter(w), nil
	case CompressXZ:
		zw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return zw, nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}

// NewReader 返回解压 r 的 Reader
func NewReader(r io.Reader, c Compression) (io.Reader, error) {
	switch c {
	case CompressNone, "":
		return r, nil
	case CompressLZ4:
		return lz4.NewReader(r), nil
	case CompressXZ:
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return zr, nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}

// WriteRaw 写出段的原始字节
func WriteRaw(w io.Writer, s *Section, c Compression) error {
	cw, err := NewWriter(w, c)
	if err != nil {
		return err
	}
	if _, err := cw.Write(s.Bytes()); err != nil {
		cw.Close()
		return fmt.Errorf("write section %s: %w", s.Name, err)
	}
	return cw.Close()
}
