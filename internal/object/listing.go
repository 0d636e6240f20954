package object

import (
	"encoding/hex"
	"io"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

// Listing 段的 JSON 描述，供链接器前端或调试工具读取
type Listing struct {
	Unit    uuid.UUID `json:"unit"`
	Arch    string    `json:"arch"`
	Section string    `json:"section"`
	BuildID string    `json:"build_id"`
	Size    int       `json:"size"`
	Symbols []Symbol  `json:"symbols"`
	Relocs  []Reloc   `json:"relocs"`
	Code    string    `json:"code"` // 十六进制
}

// NewListing 从代码段生成 Listing
func NewListing(s *Section, unit uuid.UUID, arch string) *Listing {
	data := s.Bytes()
	return &Listing{
		Unit:    unit,
		Arch:    arch,
		Section: s.Name,
		BuildID: s.BuildID(),
		Size:    len(data),
		Symbols: s.Symbols(),
		Relocs:  s.Relocs(),
		Code:    hex.EncodeToString(data),
	}
}

// WriteTo 以缩进 JSON 写出
func (l *Listing) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	n, err := w.Write(data)
	return int64(n), err
}
